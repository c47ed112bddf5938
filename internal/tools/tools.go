// Package tools implements the framework's built-in core.Tool set: Shell,
// Read, Edit (hashline-anchored), Glob, WebFetch, TodoWrite, and SubAgent.
// Grounded on the teacher's internal/mcptools package, generalized from the
// mcp.ToolHandler contract to core.Tool's Execute signature.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolvePath joins file onto root (the runtime's working directory)
// unless file is already absolute, then rejects anything that escapes
// root — the same guard the teacher's validatePath/validatePathWithRoot
// apply before every file-touching tool call.
func resolvePath(root, file string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	var absPath string
	if filepath.IsAbs(file) {
		absPath = file
	} else {
		absPath = filepath.Join(rootAbs, file)
	}
	absPath, err = filepath.Abs(absPath)
	if err != nil {
		return "", fmt.Errorf("invalid file path: %w", err)
	}
	relPath, err := filepath.Rel(rootAbs, absPath)
	if err != nil || strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("access denied: path outside working directory")
	}
	return absPath, nil
}

// fileExists reports whether path names a regular file or directory.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// truncateMiddle keeps the head and tail of s and elides the middle once s
// exceeds maxChars runes, matching the teacher's Shell output truncation.
func truncateMiddle(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	half := maxChars / 2
	return string(runes[:half]) + "\n\n... [truncated] ...\n\n" + string(runes[len(runes)-half:])
}

// truncateTail keeps only the head of s once it exceeds maxChars runes.
func truncateTail(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "\n\n[Truncated]"
}

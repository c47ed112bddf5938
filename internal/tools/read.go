package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/hashline"
)

// ReadArgs are the arguments to the Read tool, grounded on the teacher's
// mcptools.ReadArgs.
type ReadArgs struct {
	File  string `json:"file" jsonschema:"required,description=Path to the file to read"`
	Start int    `json:"start,omitempty" jsonschema:"description=Optional: starting line number (1-indexed, inclusive)"`
	End   int    `json:"end,omitempty" jsonschema:"description=Optional: ending line number (1-indexed, inclusive)"`
}

// NewRead builds the Read tool. tracker is shared with the Edit tool built
// from NewEdit with the same tracker, so Edit can enforce "Read before
// Edit" per session.
func NewRead(tracker *fileReadTracker) core.Tool {
	schema := generateSchema[ReadArgs]()
	return core.Tool{
		Name:        "Read",
		Description: `Reads a file and returns hashline-tagged content. Each line is returned as "linenum:hash|content". You MUST Read a file before editing it with Edit. Use start/end for line ranges.`,
		Parameters:  schema,
		Execute:     executeRead(schema, tracker),
	}
}

func executeRead(schema json.RawMessage, tracker *fileReadTracker) core.ToolExecuteFunc {
	return func(ctx context.Context, input json.RawMessage, tctx core.ToolContext) (string, error) {
		if err := validateArgs(schema, input); err != nil {
			return "", err
		}
		var args ReadArgs
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if args.File == "" {
			return "", fmt.Errorf("file path cannot be empty")
		}

		absPath, err := resolvePath(tctx.Runtime.Cwd(), args.File)
		if err != nil {
			return "", err
		}

		content, err := tctx.Runtime.ReadFile(ctx, absPath)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}

		tracker.markRead(tctx.SessionID, absPath)

		lines := strings.Split(content, "\n")
		selected, startLine, err := extractRange(lines, content, args.Start, args.End)
		if err != nil {
			return "", err
		}

		tagged := hashline.TagLines(selected, startLine)
		taggedOutput := hashline.FormatTagged(tagged)

		rangeInfo := ""
		if args.Start > 0 || args.End > 0 {
			end := args.End
			if end <= 0 || end > len(lines) {
				end = len(lines)
			}
			rangeInfo = fmt.Sprintf(" (lines %d-%d)", startLine, end)
		}

		return fmt.Sprintf("Read %s%s (%d lines):\n\n%s", args.File, rangeInfo, len(tagged), taggedOutput), nil
	}
}

// extractRange returns the selected content and its 1-indexed start line
// for a [start,end] range, defaulting to the whole file when both are
// unset. Grounded on the teacher's mcptools.extractRange.
func extractRange(lines []string, full string, start, end int) (string, int, error) {
	if start <= 0 && end <= 0 {
		return full, 1, nil
	}
	if start <= 0 {
		start = 1
	}
	if start < 1 || start > len(lines) {
		return "", 0, fmt.Errorf("start line %d out of range (file has %d lines)", start, len(lines))
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return "", 0, fmt.Errorf("invalid range: start (%d) > end (%d)", start, end)
	}
	return strings.Join(lines[start-1:end], "\n"), start, nil
}

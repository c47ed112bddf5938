// Package runtime implements the Runtime side-effect boundary (spec §4.2):
// an in-process POSIX shell plus file access, scoped to a root directory.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"mvdan.cc/sh/v3/interp"

	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/shell"
)

// LocalRuntime anchors a shell.Shell and plain file I/O to a root
// directory. It implements core.Runtime.
type LocalRuntime struct {
	sh   *shell.Shell
	root string
}

// New creates a LocalRuntime rooted at root. An empty root defaults to the
// process's working directory. blockers are applied to every Exec call;
// pass shell.DefaultBlockFuncs() for the framework's standard denylist.
func New(root string, blockers []shell.BlockFunc) *LocalRuntime {
	if root == "" {
		root, _ = os.Getwd()
	}
	return &LocalRuntime{sh: shell.New(root, blockers), root: root}
}

func (r *LocalRuntime) Cwd() string { return r.sh.Dir() }

// Exec runs command through the anchored shell. opts.Timeout, if nonzero,
// bounds the call independently of ctx's own deadline. opts.Cwd is not
// applied: the command runs in the shell's current directory.
func (r *LocalRuntime) Exec(ctx context.Context, command string, opts core.ExecOptions) (core.ExecResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	stdout, stderr, err := r.sh.Exec(ctx, command)
	exitCode := shell.ExitCode(err)
	result := core.ExecResult{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}

	var status interp.ExitStatus
	if err != nil && !errors.As(err, &status) {
		// Not a plain nonzero exit — a blocked command, parse failure,
		// panic recovery, or a context deadline. Surface it as an error
		// rather than as a bare exit code.
		log.Warn().Err(err).Str("command", command).Msg("shell exec failed")
		return result, fmt.Errorf("exec: %w", err)
	}
	return result, nil
}

// ReadFile reads path, resolved relative to the runtime's current
// directory when it is not already absolute.
func (r *LocalRuntime) ReadFile(ctx context.Context, path string) (string, error) {
	resolved := r.resolve(path)
	b, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read file %s: %w", path, err)
	}
	return string(b), nil
}

// WriteFile writes content to path, resolved the same way as ReadFile,
// creating parent directories as needed.
func (r *LocalRuntime) WriteFile(ctx context.Context, path string, content string) error {
	resolved := r.resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("write file %s: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write file %s: %w", path, err)
	}
	return nil
}

func (r *LocalRuntime) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.Cwd(), path)
}

var _ core.Runtime = (*LocalRuntime)(nil)

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xonecas/agentturn/internal/core"
)

const (
	maxShellOutputChars = 30000
	maxShellTimeoutSec  = 600
)

// ShellArgs are the arguments to the Shell tool, grounded on the teacher's
// mcptools.ShellArgs.
type ShellArgs struct {
	Command     string `json:"command" jsonschema:"required,description=The shell command to execute"`
	Description string `json:"description" jsonschema:"required,description=Brief description of what this command does (5-10 words)"`
	Timeout     int    `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds (default 60)"`
}

// NewShell builds the Shell tool, running commands through tctx.Runtime.
func NewShell() core.Tool {
	schema := generateSchema[ShellArgs]()
	return core.Tool{
		Name: "Shell",
		Description: `Execute a shell command in an in-process POSIX interpreter.
Commands run inside the project working directory. Shell state (cwd, env vars) persists across calls within the same session.
Dangerous commands (network, sudo, package managers, system modification) are blocked.
Use this for: running builds, tests, linters, git operations, file manipulation, and inspecting project state.`,
		Parameters: schema,
		Execute:    executeShell(schema),
	}
}

func executeShell(schema json.RawMessage) core.ToolExecuteFunc {
	return func(ctx context.Context, input json.RawMessage, tctx core.ToolContext) (string, error) {
		if err := validateArgs(schema, input); err != nil {
			return "", err
		}
		var args ShellArgs
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if args.Command == "" {
			return "", fmt.Errorf("command is required")
		}

		timeout := 60
		if args.Timeout > 0 {
			timeout = args.Timeout
		}
		if timeout > maxShellTimeoutSec {
			timeout = maxShellTimeoutSec
		}

		result, err := tctx.Runtime.Exec(ctx, args.Command, core.ExecOptions{Timeout: time.Duration(timeout) * time.Second})
		if err != nil {
			return "", err
		}

		output := formatShellOutput(result.Stdout, result.Stderr, result.ExitCode, ctx.Err())
		if output == "" {
			output = "(no output)\n"
		}
		if len([]rune(output)) > maxShellOutputChars {
			output = truncateMiddle(output, maxShellOutputChars)
		}
		return output, nil
	}
}

func formatShellOutput(stdout, stderr string, exitCode int, ctxErr error) string {
	var b strings.Builder
	if stdout != "" {
		b.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if stderr != "" {
		b.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			b.WriteByte('\n')
		}
	}
	if ctxErr != nil {
		b.WriteString("[timed out]\n")
	}
	if exitCode != 0 {
		fmt.Fprintf(&b, "[exit code: %d]\n", exitCode)
	}
	return b.String()
}

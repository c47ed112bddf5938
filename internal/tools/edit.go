package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/hashline"
)

// EditArgs are the arguments to the Edit tool. Exactly one of Replace,
// Insert, Delete, Create must be set, grounded on the teacher's
// mcptools.EditArgs.
type EditArgs struct {
	File    string     `json:"file" jsonschema:"required,description=Path to the file to edit"`
	Replace *ReplaceOp `json:"replace,omitempty" jsonschema:"description=Replace lines from start to end (inclusive) with new content"`
	Insert  *InsertOp  `json:"insert,omitempty" jsonschema:"description=Insert new lines after the anchored line"`
	Delete  *DeleteOp  `json:"delete,omitempty" jsonschema:"description=Delete lines from start to end (inclusive)"`
	Create  *CreateOp  `json:"create,omitempty" jsonschema:"description=Create a new file (fails if file already exists)"`
}

type ReplaceOp struct {
	Start   hashline.Anchor `json:"start" jsonschema:"required"`
	End     hashline.Anchor `json:"end" jsonschema:"required"`
	Content string          `json:"content" jsonschema:"required,description=Replacement text (may be multiple lines)"`
}

type InsertOp struct {
	After   hashline.Anchor `json:"after" jsonschema:"required"`
	Content string          `json:"content" jsonschema:"required,description=Text to insert (may be multiple lines)"`
}

type DeleteOp struct {
	Start hashline.Anchor `json:"start" jsonschema:"required"`
	End   hashline.Anchor `json:"end" jsonschema:"required"`
}

type CreateOp struct {
	Content string `json:"content" jsonschema:"required,description=Full file content"`
}

// NewEdit builds the Edit tool. tracker must be the same instance passed to
// NewRead so Edit can enforce "Read before Edit" per session.
func NewEdit(tracker *fileReadTracker) core.Tool {
	schema := generateSchema[EditArgs]()
	return core.Tool{
		Name: "Edit",
		Description: `Edit a file using hash-anchored operations. You MUST Read the file first to get line hashes.
Each line from Read is tagged as "linenum:hash|content". Use the line number and hash as anchors.
Exactly one operation per call: replace, insert, delete, or create.
If a hash does not match, the file changed since you read it — re-Read and retry.
After each edit you receive fresh hashes — use those for subsequent edits, not the old ones.`,
		Parameters: schema,
		Execute:    executeEdit(schema, tracker),
	}
}

func executeEdit(schema json.RawMessage, tracker *fileReadTracker) core.ToolExecuteFunc {
	return func(ctx context.Context, input json.RawMessage, tctx core.ToolContext) (string, error) {
		if err := validateArgs(schema, input); err != nil {
			return "", err
		}
		var args EditArgs
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if args.File == "" {
			return "", fmt.Errorf("file path cannot be empty")
		}
		if err := validateEditOps(args); err != nil {
			return "", err
		}

		absPath, err := resolvePath(tctx.Runtime.Cwd(), args.File)
		if err != nil {
			return "", err
		}

		if args.Create != nil {
			return handleCreate(ctx, tctx, absPath, args.File, args.Create)
		}

		if !tracker.wasRead(tctx.SessionID, absPath) {
			return "", fmt.Errorf("you must Read the file before editing it — use Read on %s first to get line hashes", args.File)
		}
		return applyEdit(ctx, tctx, absPath, args.File, args)
	}
}

func validateEditOps(args EditArgs) error {
	ops := 0
	if args.Replace != nil {
		ops++
	}
	if args.Insert != nil {
		ops++
	}
	if args.Delete != nil {
		ops++
	}
	if args.Create != nil {
		ops++
	}
	if ops != 1 {
		return fmt.Errorf("exactly one operation (replace, insert, delete, or create) must be specified")
	}
	return nil
}

func applyEdit(ctx context.Context, tctx core.ToolContext, absPath, displayPath string, args EditArgs) (string, error) {
	original, err := tctx.Runtime.ReadFile(ctx, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	lines := strings.Split(original, "\n")

	var result string
	switch {
	case args.Replace != nil:
		result, err = applyReplace(lines, args.Replace)
	case args.Insert != nil:
		result, err = applyInsert(lines, args.Insert)
	case args.Delete != nil:
		result, err = applyDelete(lines, args.Delete)
	}
	if err != nil {
		return "", err
	}

	if err := tctx.Runtime.WriteFile(ctx, absPath, result); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	tagged := hashline.TagLines(result, 1)
	text := fmt.Sprintf("Edited %s (%d lines):\n\n%s", displayPath, len(tagged), hashline.FormatTagged(tagged))
	if diff := unifiedDiff(displayPath, original, result); diff != "" {
		text += "\n\ndiff:\n```diff\n" + diff + "```"
	}
	return text, nil
}

func handleCreate(ctx context.Context, tctx core.ToolContext, absPath, displayPath string, op *CreateOp) (string, error) {
	if fileExists(absPath) {
		return "", fmt.Errorf("file already exists: %s (use replace/insert/delete to modify)", displayPath)
	}

	if err := tctx.Runtime.WriteFile(ctx, absPath, op.Content); err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	tagged := hashline.TagLines(op.Content, 1)
	return fmt.Sprintf("Created %s (%d lines):\n\n%s", displayPath, len(tagged), hashline.FormatTagged(tagged)), nil
}

// unifiedDiff renders a before/after diff preview the way the teacher's TUI
// renders a pending edit (internal/tui/messages.go), repurposed here from
// rendering-for-approval to plain tool-result text.
func unifiedDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	uri := span.URIFromPath(path)
	edits := myers.ComputeEdits(uri, before, after)
	if len(edits) == 0 {
		return ""
	}
	return fmt.Sprint(gotextdiff.ToUnified(path, path, before, edits))
}

func applyReplace(lines []string, op *ReplaceOp) (string, error) {
	if err := hashline.ValidateRange(op.Start, op.End, lines); err != nil {
		return "", fmt.Errorf("replace: %w", err)
	}
	newLines := make([]string, 0, len(lines))
	newLines = append(newLines, lines[:op.Start.Num-1]...)
	newLines = append(newLines, strings.Split(op.Content, "\n")...)
	newLines = append(newLines, lines[op.End.Num:]...)
	return strings.Join(newLines, "\n"), nil
}

func applyInsert(lines []string, op *InsertOp) (string, error) {
	if err := op.After.Validate(lines); err != nil {
		return "", fmt.Errorf("insert: after anchor: %w", err)
	}
	newLines := make([]string, 0, len(lines)+1)
	newLines = append(newLines, lines[:op.After.Num]...)
	newLines = append(newLines, strings.Split(op.Content, "\n")...)
	newLines = append(newLines, lines[op.After.Num:]...)
	return strings.Join(newLines, "\n"), nil
}

func applyDelete(lines []string, op *DeleteOp) (string, error) {
	if err := hashline.ValidateRange(op.Start, op.End, lines); err != nil {
		return "", fmt.Errorf("delete: %w", err)
	}
	newLines := make([]string, 0, len(lines))
	newLines = append(newLines, lines[:op.Start.Num-1]...)
	newLines = append(newLines, lines[op.End.Num:]...)
	return strings.Join(newLines, "\n"), nil
}

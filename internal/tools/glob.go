package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/filesearch"
)

const maxGlobResults = 200

// GlobArgs are the arguments to the Glob tool.
type GlobArgs struct {
	Pattern       string `json:"pattern" jsonschema:"required,description=Regular expression to match against file paths or contents"`
	ContentSearch bool   `json:"content_search,omitempty" jsonschema:"description=If true, search file contents instead of file paths"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema:"description=Case-sensitive matching (default false)"`
}

// NewGlob builds the Glob tool, a gitignore-aware file/content search over
// the runtime's working directory (spec SPEC_FULL.md §C), backed by
// internal/filesearch.Searcher.
func NewGlob() core.Tool {
	schema := generateSchema[GlobArgs]()
	return core.Tool{
		Name:        "Glob",
		Description: "Search for files by name pattern or, with content_search, by file content. Honors .gitignore and skips the .git directory.",
		Parameters:  schema,
		Execute:     executeGlob(schema),
	}
}

func executeGlob(schema json.RawMessage) core.ToolExecuteFunc {
	return func(ctx context.Context, input json.RawMessage, tctx core.ToolContext) (string, error) {
		if err := validateArgs(schema, input); err != nil {
			return "", err
		}
		var args GlobArgs
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if args.Pattern == "" {
			return "", fmt.Errorf("pattern is required")
		}

		root := tctx.Runtime.Cwd()
		searcher, err := filesearch.NewSearcher(root)
		if err != nil {
			return "", fmt.Errorf("init searcher: %w", err)
		}

		results, err := searcher.Search(ctx, filesearch.Options{
			Pattern:       args.Pattern,
			ContentSearch: args.ContentSearch,
			CaseSensitive: args.CaseSensitive,
			MaxResults:    maxGlobResults,
			RootDir:       root,
		})
		if err != nil {
			return "", fmt.Errorf("search failed: %w", err)
		}

		return formatGlobResults(results), nil
	}
}

func formatGlobResults(results []filesearch.Result) string {
	if len(results) == 0 {
		return "No matches found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d match(es):\n", len(results))
	for _, r := range results {
		if r.Line > 0 {
			fmt.Fprintf(&b, "%s:%d: %s\n", r.Path, r.Line, r.Content)
		} else {
			fmt.Fprintf(&b, "%s\n", r.Path)
		}
	}
	if len(results) >= maxGlobResults {
		b.WriteString("... (truncated at ")
		fmt.Fprintf(&b, "%d results)\n", maxGlobResults)
	}
	return b.String()
}

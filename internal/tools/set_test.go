package tools

import (
	"testing"

	"github.com/xonecas/agentturn/internal/modelclient"
)

func TestDefaultSetIncludesEveryBuiltinAndSelfFilters(t *testing.T) {
	set := DefaultSet(modelclient.NewMock())

	names := make(map[string]bool, len(set))
	for _, tool := range set {
		names[tool.Name] = true
	}
	for _, want := range []string{"Shell", "Read", "Edit", "Glob", "WebFetch", "TodoWrite", "SubAgent"} {
		if !names[want] {
			t.Errorf("expected %s in the default tool set", want)
		}
	}
	if len(set) != 7 {
		t.Errorf("expected 7 built-in tools, got %d", len(set))
	}
}

package session

import "github.com/xonecas/agentturn/internal/core"

// buildContext reconstructs the model message sequence for leafId by
// walking the entry DAG root-to-leaf, materializing the latest compaction
// on the path as a single synthetic summary message (spec §4.5). Pure and
// deterministic: same entries + leafId always yields the same messages.
func buildContext(entries []core.Entry, leafID *string) []core.ModelMessage {
	if leafID == nil || len(entries) == 0 {
		return nil
	}

	byID := make(map[string]core.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	var path []core.Entry
	visited := make(map[string]bool)
	cur := *leafID
	for {
		e, ok := byID[cur]
		if !ok || visited[cur] {
			break
		}
		visited[cur] = true
		path = append(path, e)
		if e.ParentID == nil {
			break
		}
		cur = *e.ParentID
	}
	// path is leaf-to-root; reverse to root-to-leaf.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	compactionIdx := -1
	for i, e := range path {
		if e.Kind == core.EntryCompaction {
			compactionIdx = i
		}
	}

	var out []core.ModelMessage
	if compactionIdx == -1 {
		for _, e := range path {
			if e.Kind == core.EntryMessage && e.Message != nil {
				out = append(out, *e.Message)
			}
		}
		return out
	}

	compaction := path[compactionIdx]
	out = append(out, core.TextMessage(core.RoleUser, "<summary>"+compaction.Summary+"</summary>"))

	// If firstKeptId matches no entry on the prefix, keeping never flips
	// true and nothing before the compaction is kept, per spec §4.5 step 5.
	keeping := false
	for i := 0; i < compactionIdx; i++ {
		e := path[i]
		if !keeping {
			if e.ID == compaction.FirstKeptID {
				keeping = true
			} else {
				continue
			}
		}
		if e.Kind == core.EntryMessage && e.Message != nil {
			out = append(out, *e.Message)
		}
	}
	for i := compactionIdx + 1; i < len(path); i++ {
		e := path[i]
		if e.Kind == core.EntryMessage && e.Message != nil {
			out = append(out, *e.Message)
		}
	}
	return out
}

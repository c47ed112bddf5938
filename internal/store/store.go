// Package store implements the session store consumed by internal/session
// (spec §6): an append-only entry log keyed by session id.
package store

import (
	"context"
	"sync"

	"github.com/xonecas/agentturn/internal/core"
)

// Store is the append-only entry log interface spec §6 describes.
// Implementations must return entries in append order from Load, must
// honor in-order writes per session from Append, and must silently skip
// malformed persisted entries rather than failing Load.
type Store interface {
	Load(ctx context.Context, sessionID string) ([]core.Entry, error)
	Append(ctx context.Context, sessionID string, entry core.Entry) error
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// Lister is implemented by stores that can enumerate every session id they
// hold. Not part of Store itself since MemoryStore's callers never need to
// list a process-lifetime-only store; the CLI's "sessions" subcommand
// type-asserts for it.
type Lister interface {
	ListSessions(ctx context.Context) ([]string, error)
}

// MemoryStore is the Agent's default store: an in-process, non-durable
// append log. Safe for concurrent use across sessions and within one.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string][]core.Entry
	existing map[string]bool
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]core.Entry), existing: make(map[string]bool)}
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries[sessionID]
	out := make([]core.Entry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, entry core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = append(s.entries[sessionID], entry)
	s.existing[sessionID] = true
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing[sessionID], nil
}

var (
	_ Store = (*MemoryStore)(nil)
)

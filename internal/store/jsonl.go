package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/agentturn/internal/core"
)

// jsonlLine is the on-disk shape spec §6 suggests: one JSON object per
// line, a discriminated union on "type".
type jsonlLine struct {
	Type        string             `json:"type"`
	ID          string             `json:"id"`
	ParentID    *string            `json:"parentId"`
	Timestamp   int64              `json:"timestamp"`
	Message     *core.ModelMessage `json:"message,omitempty"`
	Summary     string             `json:"summary,omitempty"`
	FirstKeptID string             `json:"firstKeptId,omitempty"`
}

// JSONLStore persists each session as an append-only file of one JSON
// entry per line. Grounded on None9527-NGOClaw's
// gateway/internal/infrastructure/eventbus/persistent_bus.go, which wraps
// an in-memory bus with exactly this shape of write-ahead log (buffered
// per-file writer, flush-on-append); here the "events" being logged are
// session entries rather than bus messages.
type JSONLStore struct {
	mu      sync.Mutex
	dir     string
	writers map[string]*bufio.Writer
	files   map[string]*os.File
}

// NewJSONLStore creates a JSONLStore rooted at dir, one file per session
// named "<sessionId>.jsonl".
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &JSONLStore{dir: dir, writers: make(map[string]*bufio.Writer), files: make(map[string]*os.File)}, nil
}

func (s *JSONLStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".jsonl")
}

// Close flushes and closes every open session file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for id, w := range s.writers {
		if err := w.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.files[id].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.writers = make(map[string]*bufio.Writer)
	s.files = make(map[string]*os.File)
	return firstErr
}

func (s *JSONLStore) writerFor(sessionID string) (*bufio.Writer, error) {
	if w, ok := s.writers[sessionID]; ok {
		return w, nil
	}
	f, err := os.OpenFile(s.path(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriter(f)
	s.files[sessionID] = f
	s.writers[sessionID] = w
	return w, nil
}

// Append writes entry as one JSON line and flushes immediately, so every
// successful Append call is durable on return.
func (s *JSONLStore) Append(ctx context.Context, sessionID string, entry core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := jsonlLine{
		ID:        entry.ID,
		ParentID:  entry.ParentID,
		Timestamp: entry.Timestamp.Unix(),
	}
	switch entry.Kind {
	case core.EntryMessage:
		line.Type = "message"
		line.Message = entry.Message
	case core.EntryCompaction:
		line.Type = "compaction"
		line.Summary = entry.Summary
		line.FirstKeptID = entry.FirstKeptID
	default:
		return fmt.Errorf("append: unknown entry kind %q", entry.Kind)
	}

	b, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	w, err := s.writerFor(sessionID)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return w.Flush()
}

// Load reads every entry for sessionID in append order. Lines that fail
// to parse are skipped with a warning rather than failing the load.
func (s *JSONLStore) Load(ctx context.Context, sessionID string) ([]core.Entry, error) {
	f, err := os.Open(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	var out []core.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var line jsonlLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			log.Warn().Err(err).Str("session", sessionID).Msg("skipping malformed session log line")
			continue
		}
		entry := core.Entry{
			ID:        line.ID,
			ParentID:  line.ParentID,
			Timestamp: time.Unix(line.Timestamp, 0),
		}
		switch line.Type {
		case "message":
			if line.Message == nil {
				log.Warn().Str("id", line.ID).Msg("skipping message line with no message payload")
				continue
			}
			entry.Kind = core.EntryMessage
			entry.Message = line.Message
		case "compaction":
			entry.Kind = core.EntryCompaction
			entry.Summary = line.Summary
			entry.FirstKeptID = line.FirstKeptID
		default:
			log.Warn().Str("id", line.ID).Str("type", line.Type).Msg("skipping session log line with unknown type")
			continue
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("scan session log: %w", err)
	}
	return out, nil
}

// Exists reports whether sessionID has a log file on disk.
func (s *JSONLStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.writers[sessionID]; ok {
		s.mu.Unlock()
		return true, nil
	}
	s.mu.Unlock()

	_, err := os.Stat(s.path(sessionID))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat session log: %w", err)
}

// ListSessions returns the session ids with a log file on disk, derived
// from the ".jsonl" filenames in the store directory.
func (s *JSONLStore) ListSessions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	return out, nil
}

var (
	_ Store  = (*JSONLStore)(nil)
	_ Lister = (*JSONLStore)(nil)
)

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/xonecas/agentturn/internal/core"
)

// SQLiteBusyMaxRetries, SQLiteBusyBackoffStepMs and SQLiteBusyMaxBackoff
// tune the retry/backoff loop Append uses against SQLITE_BUSY, carried
// over unchanged from the teacher's session persistence.
const (
	SQLiteBusyMaxRetries    = 10
	SQLiteBusyBackoffStepMs = 50
	SQLiteBusyMaxBackoff    = time.Second
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	parent_id     TEXT,
	seq           INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	timestamp     INTEGER NOT NULL,
	message       TEXT,
	summary       TEXT,
	first_kept_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_entries_session_seq ON entries(session_id, seq);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY
);
`

// SQLiteStore durably persists session entries, the DAG generalization of
// the teacher's flat-message session table (internal/store/session.go in
// sacenox-symb): same busy-retry backoff, same pragma tuning, same
// transactional append, now keyed on entry id/parentId instead of an
// auto-increment row id.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens a durable store at dbPath.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Exists reports whether any entry has ever been appended for sessionID.
func (s *SQLiteStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE id = ?", sessionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check session exists: %w", err)
	}
	return count > 0, nil
}

// Load returns every entry for sessionID in append order. Rows whose
// stored JSON fails to parse are skipped rather than failing the whole
// load, per spec §6 ("malformed persisted entries must be silently
// skipped").
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) ([]core.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, kind, timestamp, message, summary, first_kept_id
		 FROM entries WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	var out []core.Entry
	for rows.Next() {
		var (
			id, kind                         string
			parentID, message, summary, fkid sql.NullString
			ts                                int64
		)
		if err := rows.Scan(&id, &parentID, &kind, &ts, &message, &summary, &fkid); err != nil {
			log.Warn().Err(err).Str("session", sessionID).Msg("skipping malformed entry row")
			continue
		}

		entry := core.Entry{ID: id, Timestamp: time.Unix(ts, 0), Kind: core.EntryKind(kind)}
		if parentID.Valid {
			p := parentID.String
			entry.ParentID = &p
		}

		switch entry.Kind {
		case core.EntryMessage:
			if !message.Valid {
				log.Warn().Str("id", id).Msg("skipping message entry with no message payload")
				continue
			}
			var msg core.ModelMessage
			if err := json.Unmarshal([]byte(message.String), &msg); err != nil {
				log.Warn().Err(err).Str("id", id).Msg("skipping entry with malformed message JSON")
				continue
			}
			entry.Message = &msg
		case core.EntryCompaction:
			entry.Summary = summary.String
			entry.FirstKeptID = fkid.String
		default:
			log.Warn().Str("id", id).Str("kind", kind).Msg("skipping entry with unknown kind")
			continue
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Append persists entry for sessionID, retrying on SQLITE_BUSY with the
// teacher's step/cap backoff schedule.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, entry core.Entry) error {
	var err error
	for attempt := 0; attempt <= SQLiteBusyMaxRetries; attempt++ {
		err = s.appendOnce(ctx, sessionID, entry)
		if err == nil {
			return nil
		}
		if !IsSQLiteBusy(err) || attempt == SQLiteBusyMaxRetries {
			return err
		}
		backoff := time.Duration((attempt+1)*SQLiteBusyBackoffStepMs) * time.Millisecond
		if backoff > SQLiteBusyMaxBackoff {
			backoff = SQLiteBusyMaxBackoff
		}
		time.Sleep(backoff)
	}
	return err
}

func (s *SQLiteStore) appendOnce(ctx context.Context, sessionID string, entry core.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), -1) + 1 FROM entries WHERE session_id = ?", sessionID).Scan(&seq); err != nil {
		tx.Rollback()
		return err
	}

	var messageJSON, summary, firstKept sql.NullString
	switch entry.Kind {
	case core.EntryMessage:
		b, err := json.Marshal(entry.Message)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal message: %w", err)
		}
		messageJSON = sql.NullString{String: string(b), Valid: true}
	case core.EntryCompaction:
		summary = sql.NullString{String: entry.Summary, Valid: true}
		firstKept = sql.NullString{String: entry.FirstKeptID, Valid: true}
	}

	var parentID sql.NullString
	if entry.ParentID != nil {
		parentID = sql.NullString{String: *entry.ParentID, Valid: true}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (id, session_id, parent_id, seq, kind, timestamp, message, summary, first_kept_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, sessionID, parentID, seq, string(entry.Kind), entry.Timestamp.Unix(), messageJSON, summary, firstKept,
	); err != nil {
		tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO sessions (id) VALUES (?)", sessionID); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// IsSQLiteBusy reports whether err represents SQLite's busy/locked state,
// the teacher's substring check against the driver's error text (the
// modernc.org/sqlite driver does not export a typed busy error).
func IsSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// ListSessions returns every session id ever appended to, sorted by id.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM sessions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

var (
	_ Store  = (*SQLiteStore)(nil)
	_ Lister = (*SQLiteStore)(nil)
)

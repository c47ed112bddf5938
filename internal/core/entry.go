package core

import "time"

// EntryKind discriminates the two shapes a SessionEntry can take.
type EntryKind string

const (
	// EntryMessage is a plain appended ModelMessage.
	EntryMessage EntryKind = "message"
	// EntryCompaction replaces everything on the path before FirstKeptID
	// with a synthetic summary when the context is rebuilt (spec §4.5).
	EntryCompaction EntryKind = "compaction"
)

// Entry is one node of a session's history DAG (spec §3). ParentID is nil
// only for a session's root entry. A session may have many leaves; which
// one is "current" is tracked by the session, not the entry itself.
type Entry struct {
	ID        string
	ParentID  *string
	Timestamp time.Time
	Kind      EntryKind

	// Message is populated when Kind == EntryMessage.
	Message *ModelMessage

	// Summary and FirstKeptID are populated when Kind == EntryCompaction.
	// Summary replaces every entry on the path before FirstKeptID with a
	// single synthetic user message when buildContext walks past it;
	// FirstKeptID marks the first original entry whose message is kept
	// verbatim after the summary, together with the entries after it up
	// to this one.
	Summary     string
	FirstKeptID string
}

// NewMessageEntry builds a message entry with the given id/parent.
func NewMessageEntry(id string, parentID *string, msg ModelMessage) Entry {
	return Entry{ID: id, ParentID: parentID, Timestamp: time.Now(), Kind: EntryMessage, Message: &msg}
}

// NewCompactionEntry builds a compaction entry with the given id/parent.
func NewCompactionEntry(id string, parentID *string, summary, firstKeptID string) Entry {
	return Entry{ID: id, ParentID: parentID, Timestamp: time.Now(), Kind: EntryCompaction, Summary: summary, FirstKeptID: firstKeptID}
}

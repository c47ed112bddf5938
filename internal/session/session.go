// Package session implements the session controller of spec §4.4: the
// entry-log-backed driver that turns a loop.Loop into a durable,
// listener-observable, steerable conversation. The persistence shape
// generalizes a flat message log into the DAG entries of spec §3, and the
// callback wiring generalizes an OnMessage/OnDelta/OnToolCall/OnUsage
// style API into the ordered listener registry spec §4.4.1 calls for.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/loop"
	"github.com/xonecas/agentturn/internal/modelclient"
	"github.com/xonecas/agentturn/internal/store"
)

// SendMode selects how a Send call behaves while a turn is already running
// (spec §4.4.2).
type SendMode string

const (
	ModeSteer SendMode = "steer"
	ModeQueue SendMode = "queue"
)

// Additional event kinds the session vocabulary adds on top of core's five
// (spec §6 "Session events").
const (
	EventTurnEnd core.EventKind = "turn_end"
	EventError   core.EventKind = "error"
)

// Event is what session listeners receive: core.Event's fields plus the
// turn_end/error payloads that have no place in the loop's own vocabulary.
type Event struct {
	core.Event

	// EventTurnEnd
	TurnMessages []core.ModelMessage
	TurnText     string

	// EventError
	Err error
}

// Listener observes one kind of session event. A returned error propagates
// out of runLoop as a turn error (spec §4.4.1).
type Listener func(ctx context.Context, ev Event) error

// ToolCallListener is consulted for every pending tool call; the first
// listener to return a non-nil Decision wins and later ones are skipped
// for that call (spec §4.4.1).
type ToolCallListener func(ctx context.Context, ev Event) (*core.Decision, error)

// Config configures a Session's loop and persistence.
type Config struct {
	Model        modelclient.Client
	SystemPrompt string
	Tools        []core.Tool
	Runtime      core.Runtime
	// MaxSteps is forwarded to loop.Config.MaxSteps unchanged: nil means
	// "use loop.DefaultMaxSteps", a non-nil pointer (including one
	// pointing at zero) is honored exactly. Session applies no default of
	// its own — Agent.New is where the Config a caller omits gets one.
	MaxSteps    *int
	Store       store.Store
	SendMode    SendMode
	RepeatGuard *loop.RepeatGuard
}

// pendingEntry is one user message drained from a queue by a loop drain
// callback, still awaiting persistence/emission. Its parent is resolved at
// flush time, not drain time: a mid-Phase-1 drain (spec §4.3 drain point 2)
// happens before that step's tool-result entries exist, so chaining off
// the drain-time leaf would fork the steering entry off the assistant
// message instead of appending after the step's tool results, silently
// dropping those tool results from any buildContext walk through the new
// leaf. Flush-time resolution is what actually honors spec §5 guarantee 4
// ("parentId reflects the leaf at the moment it was drained") together
// with guarantee 5 and §4.3 step 10 (appended only after all of the step's
// tool results): by the time flushPending runs, the step's tool results
// are already the current leaf.
type pendingEntry struct {
	msg core.ModelMessage
}

// Session owns the entry log, the listener registry, the steering/
// follow-up queues, and the completion latch described in spec §4.4.
type Session struct {
	ID  string
	cfg Config

	mu          sync.Mutex
	entries     []core.Entry
	leafEntryID *string
	messages    []core.ModelMessage

	listeners     map[core.EventKind]map[uint64]Listener
	toolListeners map[uint64]ToolCallListener
	nextSubID     uint64

	steeringQueue []core.ModelMessage
	followUpQueue []core.ModelMessage

	latch *latch
}

func newSession(id string, cfg Config) *Session {
	return &Session{
		ID:            id,
		cfg:           cfg,
		listeners:     make(map[core.EventKind]map[uint64]Listener),
		toolListeners: make(map[uint64]ToolCallListener),
	}
}

// New builds a session with empty history (spec §4.6 createSession).
func New(id string, cfg Config) *Session {
	return newSession(id, cfg)
}

// Resume builds a session over entries already loaded from the store,
// deriving its messages via buildContext (spec §4.6 resumeSession).
// leafID is nil for a brand-new entry log.
func Resume(id string, cfg Config, entries []core.Entry, leafID *string) *Session {
	s := newSession(id, cfg)
	s.entries = entries
	s.leafEntryID = leafID
	s.messages = buildContext(entries, leafID)
	return s
}

// LeafEntryID returns the session's current leaf entry id, or nil if the
// session has no entries yet.
func (s *Session) LeafEntryID() *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leafEntryID
}

// Entries returns a copy of the session's loaded entry log.
func (s *Session) Entries() []core.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// On registers a listener for kind, invoked in registration order. The
// returned func unregisters it — spec's on/off pair rendered as a
// subscription handle instead of by listener-value equality, since Go
// func values are not comparable.
func (s *Session) On(kind core.EventKind, l Listener) (off func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	if s.listeners[kind] == nil {
		s.listeners[kind] = make(map[uint64]Listener)
	}
	s.listeners[kind][id] = l
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners[kind], id)
		s.mu.Unlock()
	}
}

// OnToolCall registers a tool_call decision listener.
func (s *Session) OnToolCall(l ToolCallListener) (off func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.toolListeners[id] = l
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.toolListeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) listenersFor(kind core.EventKind) []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.listeners[kind]
	if len(bucket) == 0 {
		return nil
	}
	// Insertion order isn't recoverable from a map; track it separately
	// via ids, which are monotonically assigned at registration time.
	ids := make([]uint64, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = bucket[id]
	}
	return out
}

func (s *Session) toolCallListenersOrdered() []ToolCallListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.toolListeners))
	for id := range s.toolListeners {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	out := make([]ToolCallListener, len(ids))
	for i, id := range ids {
		out[i] = s.toolListeners[id]
	}
	return out
}

// emit invokes every listener registered for ev.Kind, in order, swallowing
// a best-effort emission (turn_end/error themselves never propagate their
// own listener errors — callers pass swallow=true there).
func (s *Session) emit(ctx context.Context, ev Event, swallow bool) error {
	for _, l := range s.listenersFor(ev.Kind) {
		if err := l(ctx, ev); err != nil {
			if swallow {
				log.Warn().Err(err).Str("session", s.ID).Str("kind", string(ev.Kind)).Msg("session: listener error swallowed")
				continue
			}
			return err
		}
	}
	return nil
}

// Send implements spec §4.4.2: synchronous, non-blocking. ctx bounds the
// turn if one is newly started (the rendering of the spec's "signal"),
// and is otherwise unused by queued/steered sends. Steering and follow-up
// messages still queued when the running turn ends, normally or with an
// error, are discarded.
func (s *Session) Send(ctx context.Context, text string, mode SendMode) {
	msg := core.UserMessage(text)
	if mode == "" {
		mode = s.cfg.SendMode
	}
	if mode == "" {
		mode = ModeSteer
	}

	s.mu.Lock()
	if s.latch == nil {
		l := newLatch()
		s.latch = l
		s.mu.Unlock()
		go s.runLoop(ctx, l, []core.ModelMessage{msg})
		return
	}
	switch mode {
	case ModeQueue:
		s.followUpQueue = append(s.followUpQueue, msg)
	default:
		s.steeringQueue = append(s.steeringQueue, msg)
	}
	s.mu.Unlock()
}

// WaitForIdle implements spec §4.4.3.
func (s *Session) WaitForIdle(ctx context.Context) error {
	s.mu.Lock()
	l := s.latch
	s.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.wait(ctx)
}

// drainQueue empties q and returns whatever was pending. The parent each
// drained message is ultimately appended under is resolved later, at
// flush time, not here (see pendingEntry).
func (s *Session) drainQueue(q *[]core.ModelMessage) []core.ModelMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(*q) == 0 {
		return nil
	}
	drained := *q
	*q = nil
	return drained
}

// appendEntry mints an id, appends the entry to the in-memory log and the
// store, and advances leafEntryID. Must be called with s.mu unlocked (it
// takes the lock itself) since it also calls out to the store.
func (s *Session) appendEntry(ctx context.Context, parentID *string, msg *core.ModelMessage, summary, firstKeptID string) core.Entry {
	id := uuid.NewString()
	var e core.Entry
	if msg != nil {
		e = core.NewMessageEntry(id, parentID, *msg)
	} else {
		e = core.NewCompactionEntry(id, parentID, summary, firstKeptID)
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	leaf := e.ID
	s.leafEntryID = &leaf
	s.mu.Unlock()

	if err := s.cfg.Store.Append(ctx, s.ID, e); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("session: store append failed")
	}
	return e
}

// runLoop drives one turn to completion (spec §4.4.4). The loop.Loop
// exclusively owns the messages slice for the turn's duration (spec §5
// "Shared resources"); the session only reads it via the events it emits
// and syncs its own copy back once the turn ends.
func (s *Session) runLoop(ctx context.Context, l *latch, initial []core.ModelMessage) {
	var accumulator []core.ModelMessage
	var lastText string

	// appendAndEmit persists one already-positioned message as an entry
	// and emits it as a message event. Used both for the initial batch
	// (before the loop starts) and for steering/follow-up messages drained
	// mid-turn (which the loop itself has already spliced into its
	// messages slice at the relevant drain point — this call only adds
	// the durable entry and the listener-visible event).
	appendAndEmit := func(msg core.ModelMessage, parentID *string) error {
		s.appendEntry(ctx, parentID, &msg, "", "")
		accumulator = append(accumulator, msg)
		return s.emit(ctx, Event{Event: core.Event{Kind: core.EventMessage, Message: &msg}}, false)
	}

	for _, m := range initial {
		s.mu.Lock()
		s.messages = append(s.messages, m)
		parent := s.leafEntryID
		s.mu.Unlock()
		if err := appendAndEmit(m, parent); err != nil {
			s.finish(ctx, l, err)
			return
		}
	}

	// pending holds steering/follow-up messages drained mid-turn, not yet
	// persisted/emitted. Flushing only happens immediately before the next
	// message event or at turn_end: flushing before every event (as a
	// literal reading of spec §4.4.4 would require) would surface a
	// mid-Phase-1 steering message before that step's own tool_result
	// events, which directly violates the explicit ordering guarantee
	// (spec §5 guarantee 5, §4.3 step 10) that the steering entry is
	// appended only after all of the step's tool results.
	var pending []pendingEntry

	drainIntoPending := func(q *[]core.ModelMessage) []core.ModelMessage {
		drained := s.drainQueue(q)
		if len(drained) == 0 {
			return nil
		}
		for _, m := range drained {
			pending = append(pending, pendingEntry{msg: m})
		}
		return drained
	}
	getSteering := func() []core.ModelMessage { return drainIntoPending(&s.steeringQueue) }
	getFollowUp := func() []core.ModelMessage { return drainIntoPending(&s.followUpQueue) }

	flushPending := func() error {
		batch := pending
		pending = nil
		for _, p := range batch {
			s.mu.Lock()
			parent := s.leafEntryID
			s.mu.Unlock()
			if err := appendAndEmit(p.msg, parent); err != nil {
				return err
			}
		}
		return nil
	}

	s.mu.Lock()
	messages := make([]core.ModelMessage, len(s.messages))
	copy(messages, s.messages)
	s.mu.Unlock()

	lp := loop.New(&messages, loop.Config{
		Model:               s.cfg.Model,
		SystemPrompt:        s.cfg.SystemPrompt,
		Tools:               s.cfg.Tools,
		Runtime:             s.cfg.Runtime,
		MaxSteps:            s.cfg.MaxSteps,
		GetSteeringMessages: getSteering,
		GetFollowUpMessages: getFollowUp,
		SessionID:           s.ID,
		RepeatGuard:         s.cfg.RepeatGuard,
	})

	decision := core.Decision{}
	for {
		ev, ok := lp.Next(ctx, decision)
		if !ok {
			break
		}
		decision = core.Decision{}

		switch ev.Kind {
		case core.EventMessage:
			if err := flushPending(); err != nil {
				s.finish(ctx, l, err)
				return
			}
			s.mu.Lock()
			parent := s.leafEntryID
			s.mu.Unlock()
			if ev.Message.Role == core.RoleAssistant {
				lastText = ev.Message.Text()
			}
			if err := appendAndEmit(*ev.Message, parent); err != nil {
				s.finish(ctx, l, err)
				return
			}
		case core.EventToolCall:
			d, err := s.collectToolDecision(ctx, ev)
			if err != nil {
				s.finish(ctx, l, err)
				return
			}
			decision = *d
			continue
		case core.EventToolResult:
			s.mu.Lock()
			parent := s.leafEntryID
			s.mu.Unlock()
			s.appendEntry(ctx, parent, ev.Message, "", "")
			accumulator = append(accumulator, *ev.Message)
			if err := s.emit(ctx, Event{Event: ev}, false); err != nil {
				s.finish(ctx, l, err)
				return
			}
		case core.EventTextDelta, core.EventStep:
			if err := s.emit(ctx, Event{Event: ev}, false); err != nil {
				s.finish(ctx, l, err)
				return
			}
		}
	}

	if err := lp.Err(); err != nil {
		s.finish(ctx, l, err)
		return
	}

	if err := flushPending(); err != nil {
		s.finish(ctx, l, err)
		return
	}

	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()

	s.emit(ctx, Event{Event: core.Event{Kind: EventTurnEnd}, TurnMessages: accumulator, TurnText: lastText}, true)
	l.settle(nil)
	s.mu.Lock()
	s.latch = nil
	s.steeringQueue = nil
	s.followUpQueue = nil
	s.mu.Unlock()
}

// finish implements the error branch of spec §4.4.4 and settle() (§4.4.5).
func (s *Session) finish(ctx context.Context, l *latch, err error) {
	s.emit(ctx, Event{Event: core.Event{Kind: EventError}, Err: err}, true)
	l.settle(err)
	s.mu.Lock()
	s.latch = nil
	s.steeringQueue = nil
	s.followUpQueue = nil
	s.mu.Unlock()
}

// collectToolDecision invokes tool-call listeners in order; the first to
// return a non-nil Decision wins (spec §4.4.1).
func (s *Session) collectToolDecision(ctx context.Context, ev core.Event) (*core.Decision, error) {
	sev := Event{Event: ev}
	for _, l := range s.toolCallListenersOrdered() {
		d, err := l(ctx, sev)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
	}
	allow := core.Allow()
	return &allow, nil
}

// latch is the single-shot completion signal of spec §4.4 ("completion
// latch"): null while idle, created fresh for each running turn.
type latch struct {
	done chan struct{}
	err  error
}

func newLatch() *latch { return &latch{done: make(chan struct{})} }

func (l *latch) settle(err error) {
	l.err = err
	close(l.done)
}

func (l *latch) wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package loop implements the two-way coroutine turn state machine (spec
// §4.3): the per-step algorithm that drives a modelclient.Client to
// completion, mediates tool-call approval, and honors the three drain
// points at which a session may inject queued user messages.
//
// Go has no native bidirectional generator, so the coroutine is rendered
// as a dedicated goroutine crossed by two channels — events flowing out,
// decisions flowing in — exactly the "two channels crossed by a dedicated
// task" rendering spec §9's Design Notes call for.
package loop

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/modelclient"
)

// DefaultMaxSteps is the step bound New applies when Config.MaxSteps is nil.
const DefaultMaxSteps = 100

// Config configures one Loop (spec §4.3 "Inputs").
type Config struct {
	Model        modelclient.Client
	SystemPrompt string
	Tools        []core.Tool
	Runtime      core.Runtime

	// MaxSteps bounds a turn's model round-trips. nil means "use
	// DefaultMaxSteps"; a non-nil pointer is honored exactly, including a
	// pointer to zero, which terminates the turn before any step runs
	// (spec §8 boundary: "maxSteps = 0: no step events; immediate
	// termination"). Use core.IntPtr to build one inline.
	MaxSteps *int

	// GetSteeringMessages and GetFollowUpMessages are invoked at the
	// three drain points. Each call drains and returns whatever is
	// pending; nil is treated as "never anything pending".
	GetSteeringMessages func() []core.ModelMessage
	GetFollowUpMessages func() []core.ModelMessage

	// SessionID is threaded into each tool's ToolContext.
	SessionID string

	// RepeatGuard, if set, is consulted after every tool-call step to
	// detect a stuck repeated call and annotate the last tool result
	// (spec SPEC_FULL.md §D "repeated-tool-call nudging").
	RepeatGuard *RepeatGuard
}

// Loop drives Config.Model through a turn, yielding events and accepting
// tool-call decisions via Next. Next(ctx, decision) is the Go rendering
// of `gen.next(decision)`: decision applies to whatever tool_call event
// the previous call to Next returned, and is ignored for every other
// event kind.
type Loop struct {
	cfg      Config
	maxSteps int
	messages *[]core.ModelMessage

	eventsCh   chan core.Event
	decisionCh chan core.Decision

	started bool

	mu  sync.Mutex
	err error
}

// New builds a Loop over messages, which is appended to in place exactly
// as the spec's mutable-by-reference "messages" sequence describes.
func New(messages *[]core.ModelMessage, cfg Config) *Loop {
	maxSteps := DefaultMaxSteps
	if cfg.MaxSteps != nil {
		maxSteps = *cfg.MaxSteps
	}
	return &Loop{
		cfg:        cfg,
		maxSteps:   maxSteps,
		messages:   messages,
		eventsCh:   make(chan core.Event),
		decisionCh: make(chan core.Decision),
	}
}

// Next advances the coroutine by one event. On the first call decision is
// ignored (nothing has yielded yet); on every later call it is delivered
// as the resolution of the previously returned event. Returns ok=false
// once the loop has no more events — callers must then inspect Err.
func (l *Loop) Next(ctx context.Context, decision core.Decision) (core.Event, bool) {
	if !l.started {
		l.started = true
		go l.run(ctx)
	} else {
		select {
		case l.decisionCh <- decision:
		case <-ctx.Done():
			return core.Event{}, false
		}
	}

	select {
	case ev, ok := <-l.eventsCh:
		return ev, ok
	case <-ctx.Done():
		return core.Event{}, false
	}
}

// Err returns the error the loop terminated with, if any. Only meaningful
// after Next has returned ok=false.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) setErr(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.eventsCh)
	if err := l.runSteps(ctx); err != nil {
		l.setErr(err)
	}
}

// yield sends ev to the driver and blocks for the matching decision. The
// returned bool is false when ctx was canceled before a decision arrived
// (step 3's "If cancelled mid-stream, break"; applies to every yield).
func (l *Loop) yield(ctx context.Context, ev core.Event) (core.Decision, bool) {
	select {
	case l.eventsCh <- ev:
	case <-ctx.Done():
		return core.Decision{}, false
	}
	select {
	case d := <-l.decisionCh:
		return d, true
	case <-ctx.Done():
		return core.Decision{}, false
	}
}

func toolDescriptors(tools []core.Tool) []modelclient.ToolDescriptor {
	out := make([]modelclient.ToolDescriptor, len(tools))
	for i, t := range tools {
		out[i] = modelclient.ToolDescriptor{Name: t.Name, Description: t.Description, InputSchema: t.Parameters}
	}
	return out
}

func findTool(tools []core.Tool, name string) (core.Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return core.Tool{}, false
}

// runSteps implements the per-step algorithm of spec §4.3.
func (l *Loop) runSteps(ctx context.Context) error {
	step := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		step++
		if step > l.maxSteps {
			return nil
		}

		// Drain point 1 (pre-call).
		if l.cfg.GetSteeringMessages != nil {
			if pre := l.cfg.GetSteeringMessages(); len(pre) > 0 {
				*l.messages = append(*l.messages, pre...)
			}
		}

		text, calls, usage, finishReason, err := l.runModelCall(ctx)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		msg := core.AssistantMessage(text, calls)
		*l.messages = append(*l.messages, msg)
		if _, ok := l.yield(ctx, core.Event{Kind: core.EventMessage, Message: &msg}); !ok {
			return nil
		}
		if _, ok := l.yield(ctx, core.Event{Kind: core.EventStep, Usage: usage, FinishReason: finishReason}); !ok {
			return nil
		}

		if len(calls) == 0 {
			var followUps []core.ModelMessage
			if l.cfg.GetFollowUpMessages != nil {
				followUps = l.cfg.GetFollowUpMessages()
			}
			if len(followUps) == 0 {
				return nil
			}
			*l.messages = append(*l.messages, followUps...)
			continue
		}

		deferred, err := l.runToolPhases(ctx, calls)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if len(deferred) > 0 {
			*l.messages = append(*l.messages, deferred...)
		}
	}
}

// runModelCall streams one model round-trip, forwarding text_delta events
// and collecting tool calls without yielding tool_call events for them
// yet (that happens in Phase 1).
func (l *Loop) runModelCall(ctx context.Context) (text string, calls []core.ToolCallPart, usage core.Usage, finishReason string, err error) {
	stream, err := l.cfg.Model.Stream(ctx, l.cfg.SystemPrompt, *l.messages, toolDescriptors(l.cfg.Tools))
	if err != nil {
		return "", nil, core.Usage{}, "", &core.ModelError{Err: err}
	}

	var b strings.Builder
	for part := range stream.Parts {
		switch part.Type {
		case modelclient.PartTextDelta:
			b.WriteString(part.Text)
			if _, ok := l.yield(ctx, core.Event{Kind: core.EventTextDelta, Delta: part.Text}); !ok {
				drainParts(stream.Parts)
				return b.String(), calls, core.Usage{}, "", nil
			}
		case modelclient.PartToolCall:
			calls = append(calls, core.ToolCallPart{ID: part.ToolCallID, Name: part.ToolName, Input: part.Input})
		}
	}

	usage, uErr := stream.Usage()
	if uErr != nil {
		return "", nil, core.Usage{}, "", &core.ModelError{Err: uErr}
	}
	finishReason, _ = stream.FinishReason()
	return b.String(), calls, usage, finishReason, nil
}

func drainParts(parts <-chan modelclient.StreamPart) {
	for range parts {
	}
}

type toolOutcome struct {
	output  string
	isError bool
}

// runToolPhases implements Phase 1 (decision collection), Phase 2
// (parallel execution), and Phase 3 (ordered result emission) of spec
// §4.3. Returns any steering messages deferred by a mid-Phase-1
// interruption, for the caller to append after this function returns.
func (l *Loop) runToolPhases(ctx context.Context, calls []core.ToolCallPart) ([]core.ModelMessage, error) {
	decisions := make([]core.Decision, len(calls))
	var deferred []core.ModelMessage
	cutoff := len(calls)

	for i, call := range calls {
		if l.cfg.GetSteeringMessages != nil {
			if mid := l.cfg.GetSteeringMessages(); len(mid) > 0 {
				deferred = append(deferred, mid...)
				cutoff = i
				break
			}
		}

		if _, found := findTool(l.cfg.Tools, call.Name); !found {
			decisions[i] = core.Allow()
			continue
		}
		decision, ok := l.yield(ctx, core.Event{Kind: core.EventToolCall, CallID: call.ID, ToolName: call.Name, Args: call.Input})
		if !ok {
			return nil, nil
		}
		decisions[i] = decision
	}
	for i := cutoff; i < len(calls); i++ {
		decisions[i] = core.Deny(core.SteeringDenyReason)
	}

	outcomes := l.executeToolCalls(ctx, calls, decisions)

	if l.cfg.RepeatGuard != nil {
		l.cfg.RepeatGuard.Observe(calls)
		if note := l.cfg.RepeatGuard.Reminder(); note != "" && len(outcomes) > 0 {
			last := &outcomes[len(outcomes)-1]
			last.output += "\n\n<system-reminder>\n" + note + "\n</system-reminder>"
		}
	}

	for i, call := range calls {
		out := outcomes[i]
		msg := core.ToolResultMessage(call.ID, call.Name, out.output)
		*l.messages = append(*l.messages, msg)
		ev := core.Event{
			Kind: core.EventToolResult, CallID: call.ID, ToolName: call.Name,
			Result: out.output, IsError: out.isError, Message: &msg,
		}
		if _, ok := l.yield(ctx, ev); !ok {
			return nil, nil
		}
	}

	return deferred, nil
}

// executeToolCalls runs every pending call concurrently (Phase 2) and
// returns outcomes indexed the same as calls. Tool failures are captured
// as isError outcomes rather than propagated through the group, so Wait
// never itself returns an error — errgroup is used here purely for its
// fan-out/join shape (the same pattern the pack's hector and oasis repos
// use for concurrent tool execution).
func (l *Loop) executeToolCalls(ctx context.Context, calls []core.ToolCallPart, decisions []core.Decision) []toolOutcome {
	outcomes := make([]toolOutcome, len(calls))
	var g errgroup.Group
	for i := range calls {
		i := i
		g.Go(func() error {
			outcomes[i] = l.executeOne(ctx, calls[i], decisions[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (l *Loop) executeOne(ctx context.Context, call core.ToolCallPart, decision core.Decision) toolOutcome {
	tool, found := findTool(l.cfg.Tools, call.Name)
	if !found {
		return toolOutcome{output: "Tool not found: " + call.Name, isError: true}
	}
	if decision.Kind == core.DecisionDeny {
		return toolOutcome{output: decision.Deny, isError: true}
	}
	args := call.Input
	if decision.Kind == core.DecisionArgs {
		args = decision.Args
	}
	out, err := tool.Execute(ctx, args, core.ToolContext{Runtime: l.cfg.Runtime, SessionID: l.cfg.SessionID})
	if err != nil {
		log.Warn().Str("tool", call.Name).Err(err).Msg("loop: tool execution failed")
		return toolOutcome{output: err.Error(), isError: true}
	}
	return toolOutcome{output: out}
}

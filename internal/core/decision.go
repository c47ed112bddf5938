package core

import "encoding/json"

// DecisionKind selects which field of a Decision applies.
type DecisionKind int

const (
	// DecisionNone means the listener has no opinion — the call proceeds
	// with its original arguments. The zero value of Decision.
	DecisionNone DecisionKind = iota
	// DecisionDeny means the call must not execute; Decision.Deny carries
	// the reason, surfaced in the tool_result as an isError output.
	DecisionDeny
	// DecisionArgs means the call executes with Decision.Args substituted
	// for the model's original input.
	DecisionArgs
)

// Decision is what a tool_call listener returns to steer a pending call
// (spec §4.3 drain point 2 / the listener registry of §4.4.1). The first
// tool_call listener to return a non-none Decision wins; later listeners
// are not consulted for that call.
type Decision struct {
	Kind DecisionKind
	Deny string
	Args json.RawMessage
}

// Allow is the zero Decision: let the call proceed unmodified.
func Allow() Decision { return Decision{} }

// Deny builds a Decision that blocks the call, recording reason as the
// tool result's error output.
func Deny(reason string) Decision {
	return Decision{Kind: DecisionDeny, Deny: reason}
}

// OverrideArgs builds a Decision that substitutes args for the call's
// original input before it executes.
func OverrideArgs(args json.RawMessage) Decision {
	return Decision{Kind: DecisionArgs, Args: args}
}

// IsNone reports whether the decision carries no opinion.
func (d Decision) IsNone() bool { return d.Kind == DecisionNone }

// SteeringDenyReason is the canonical reason string attached to tool calls
// that are auto-denied because a new user message arrived mid-Phase-1
// (spec §4.3 drain point 2, §9). Never localized.
const SteeringDenyReason = "Skipped: user sent a new message"

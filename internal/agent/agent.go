// Package agent implements the Agent factory of spec §4.6: the entry
// point that applies framework-wide defaults and mints sessions. The
// defaulting shape echoes cmd/agentloop/wiring.go's buildAgent/
// resolveProvider pattern of constructing services with defaults before
// handing them off — here it happens inside a reusable constructor
// instead of a CLI's main.
package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/loop"
	"github.com/xonecas/agentturn/internal/modelclient"
	"github.com/xonecas/agentturn/internal/runtime"
	"github.com/xonecas/agentturn/internal/session"
	"github.com/xonecas/agentturn/internal/shell"
	"github.com/xonecas/agentturn/internal/store"
)

const defaultMaxSteps = loop.DefaultMaxSteps

// Config configures an Agent. Model is the only field with no usable
// default — every other field falls back per spec §4.6.
type Config struct {
	Model        modelclient.Client
	SystemPrompt string
	Tools        []core.Tool
	Runtime      core.Runtime
	// MaxSteps bounds a turn's model round-trips. nil (an omitted field)
	// means "apply the package default" (defaultMaxSteps); a non-nil
	// pointer is honored exactly, including one pointing at zero, so a
	// caller that genuinely wants a zero-step turn (spec §8) can ask for
	// it with core.IntPtr(0) instead of having New silently promote it.
	MaxSteps    *int
	Store       store.Store
	SendMode    session.SendMode
	RepeatGuard *loop.RepeatGuard
}

// Agent is the factory spec §4.6 describes: constructed once with defaults
// applied, it mints sessions sharing those defaults.
type Agent struct {
	cfg Config
}

// New builds an Agent, applying the spec's defaults for any field left
// unset: maxSteps defaultMaxSteps (MaxSteps == nil), an empty tool list, a
// LocalRuntime rooted at the working directory, an in-memory store, and
// "steer" send mode.
func New(cfg Config) *Agent {
	if cfg.MaxSteps == nil {
		cfg.MaxSteps = core.IntPtr(defaultMaxSteps)
	}
	if cfg.Runtime == nil {
		cfg.Runtime = runtime.New("", shell.DefaultBlockFuncs())
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.SendMode == "" {
		cfg.SendMode = session.ModeSteer
	}
	return &Agent{cfg: cfg}
}

// CreateOptions configures CreateSession.
type CreateOptions struct {
	ID       string
	SendMode session.SendMode
}

// CreateSession builds a brand-new session with no history (spec §4.6).
func (a *Agent) CreateSession(opts CreateOptions) *session.Session {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	return session.New(id, a.sessionConfig(opts.SendMode))
}

// ResumeOptions configures ResumeSession.
type ResumeOptions struct {
	SendMode session.SendMode
	LeafID   string
}

// ResumeSession reloads a session's entries from the store and rebuilds
// its messages via buildContext (spec §4.6). Returns core.ErrSessionNotFound
// if the store has never seen id, and core.ErrEntryNotFound if LeafID is
// supplied but matches no loaded entry.
func (a *Agent) ResumeSession(ctx context.Context, id string, opts ResumeOptions) (*session.Session, error) {
	entries, err := a.cfg.Store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if len(entries) == 0 {
		exists, err := a.cfg.Store.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check session %s: %w", id, err)
		}
		if !exists {
			return nil, fmt.Errorf("session not found: %s: %w", id, core.ErrSessionNotFound)
		}
	}

	var leafID *string
	if opts.LeafID != "" {
		found := false
		for _, e := range entries {
			if e.ID == opts.LeafID {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("entry not found: %s: %w", opts.LeafID, core.ErrEntryNotFound)
		}
		leaf := opts.LeafID
		leafID = &leaf
	} else if len(entries) > 0 {
		leaf := entries[len(entries)-1].ID
		leafID = &leaf
	}

	return session.Resume(id, a.sessionConfig(opts.SendMode), entries, leafID), nil
}

func (a *Agent) sessionConfig(sendMode session.SendMode) session.Config {
	cfg := session.Config{
		Model:        a.cfg.Model,
		SystemPrompt: a.cfg.SystemPrompt,
		Tools:        a.cfg.Tools,
		Runtime:      a.cfg.Runtime,
		MaxSteps:     a.cfg.MaxSteps,
		Store:        a.cfg.Store,
		SendMode:     a.cfg.SendMode,
		RepeatGuard:  a.cfg.RepeatGuard,
	}
	if sendMode != "" {
		cfg.SendMode = sendMode
	}
	return cfg
}

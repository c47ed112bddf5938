package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/modelclient"
	"github.com/xonecas/agentturn/internal/store"
)

func TestNewAppliesDefaults(t *testing.T) {
	a := New(Config{Model: modelclient.NewMock()})
	if a.cfg.MaxSteps == nil || *a.cfg.MaxSteps != defaultMaxSteps {
		t.Fatalf("MaxSteps = %v, want %d", a.cfg.MaxSteps, defaultMaxSteps)
	}
	if a.cfg.Runtime == nil {
		t.Fatal("Runtime not defaulted")
	}
	if a.cfg.Store == nil {
		t.Fatal("Store not defaulted")
	}
}

func TestNewHonorsExplicitZeroMaxSteps(t *testing.T) {
	a := New(Config{Model: modelclient.NewMock(), MaxSteps: core.IntPtr(0)})
	if a.cfg.MaxSteps == nil || *a.cfg.MaxSteps != 0 {
		t.Fatalf("MaxSteps = %v, want pointer to 0", a.cfg.MaxSteps)
	}
}

func TestCreateSessionGeneratesID(t *testing.T) {
	a := New(Config{Model: modelclient.NewMock()})
	s := a.CreateSession(CreateOptions{})
	if s.ID == "" {
		t.Fatal("expected a generated session id")
	}
	if len(s.Entries()) != 0 {
		t.Fatalf("new session should have no entries: %+v", s.Entries())
	}
}

func TestCreateSessionHonorsExplicitID(t *testing.T) {
	a := New(Config{Model: modelclient.NewMock()})
	s := a.CreateSession(CreateOptions{ID: "fixed-id"})
	if s.ID != "fixed-id" {
		t.Fatalf("ID = %q, want fixed-id", s.ID)
	}
}

func TestResumeSessionNotFound(t *testing.T) {
	a := New(Config{Model: modelclient.NewMock(), Store: store.NewMemoryStore()})
	_, err := a.ResumeSession(context.Background(), "missing", ResumeOptions{})
	if !errors.Is(err, core.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestResumeSessionRebuildsMessages(t *testing.T) {
	st := store.NewMemoryStore()
	mock := modelclient.NewMock().Push(modelclient.MockTurn{TextDeltas: []string{"hi"}, FinishReason: "stop"})
	a := New(Config{Model: mock, Store: st})

	s := a.CreateSession(CreateOptions{ID: "sess-1"})
	s.Send(context.Background(), "hello", "")
	if err := s.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle = %v", err)
	}

	resumed, err := a.ResumeSession(context.Background(), "sess-1", ResumeOptions{})
	if err != nil {
		t.Fatalf("ResumeSession = %v", err)
	}
	if resumed.LeafEntryID() == nil {
		t.Fatal("expected a non-nil leaf after resume")
	}
	if len(resumed.Entries()) == 0 {
		t.Fatal("expected loaded entries after resume")
	}
}

func TestResumeSessionUnknownLeafErrors(t *testing.T) {
	st := store.NewMemoryStore()
	mock := modelclient.NewMock().Push(modelclient.MockTurn{TextDeltas: []string{"hi"}, FinishReason: "stop"})
	a := New(Config{Model: mock, Store: st})
	s := a.CreateSession(CreateOptions{ID: "sess-2"})
	s.Send(context.Background(), "hi", "")
	if err := s.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle = %v", err)
	}

	_, err := a.ResumeSession(context.Background(), "sess-2", ResumeOptions{LeafID: "does-not-exist"})
	if !errors.Is(err, core.ErrEntryNotFound) {
		t.Fatalf("err = %v, want ErrEntryNotFound", err)
	}
}

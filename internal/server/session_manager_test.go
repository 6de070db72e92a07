package server

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/michaelbrown/cmdbox/internal/metrics"
)

func TestSessionManager_AddGet(t *testing.T) {
	sm := NewSessionManager(nil)
	defer sm.CloseAll()

	ts := sm.Add(nil)
	if ts.ID == "" {
		t.Fatal("expected session ID")
	}

	got, ok := sm.Get(ts.ID)
	if !ok {
		t.Fatal("expected session to exist")
	}
	if got != ts {
		t.Error("expected same TerminalSession instance")
	}
	if sm.Count() != 1 {
		t.Errorf("count = %d, want 1", sm.Count())
	}
}

func TestSessionManager_Remove(t *testing.T) {
	sm := NewSessionManager(nil)

	ts := sm.Add(nil)
	sm.Remove(ts.ID)

	if _, ok := sm.Get(ts.ID); ok {
		t.Error("expected session to be removed")
	}
	// Removing twice is harmless.
	sm.Remove(ts.ID)
}

func TestSessionManager_CloseAll(t *testing.T) {
	m := metrics.New()
	sm := NewSessionManager(m)

	for i := 0; i < 3; i++ {
		sm.Add(nil)
	}
	if got := testutil.ToFloat64(m.TerminalSessions); got != 3 {
		t.Errorf("gauge = %v, want 3", got)
	}

	sm.CloseAll()

	if sm.Count() != 0 {
		t.Error("expected all sessions to be cleared")
	}
	if got := testutil.ToFloat64(m.TerminalSessions); got != 0 {
		t.Errorf("gauge = %v, want 0", got)
	}
}

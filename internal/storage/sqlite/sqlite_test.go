package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/michaelbrown/cmdbox/internal/storage"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

func TestRecordAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := &storage.Execution{
		ID:       "abc12345-0000-0000-0000-000000000000",
		Mode:     storage.ModeFree,
		Command:  "echo hi",
		Dir:      "/tmp/cmdbox",
		ExitCode: intPtr(0),
		Stdout:   "hi\n",
		Duration: 12 * time.Millisecond,
	}
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Command != "echo hi" {
		t.Errorf("command = %q, want %q", got.Command, "echo hi")
	}
	if got.Mode != storage.ModeFree {
		t.Errorf("mode = %q, want %q", got.Mode, storage.ModeFree)
	}
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", got.ExitCode)
	}
	if got.Stdout != "hi\n" {
		t.Errorf("stdout = %q, want %q", got.Stdout, "hi\n")
	}
	if got.Duration != 12*time.Millisecond {
		t.Errorf("duration = %s, want 12ms", got.Duration)
	}
	if got.Matched != nil {
		t.Errorf("matched = %v, want nil for free run", *got.Matched)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should not be zero")
	}
}

func TestRecordNullExitCode(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := &storage.Execution{ID: "t1", Mode: storage.ModeFree, Command: "sleep 10", TimedOut: true,
		Stderr: "command timed out after 1 seconds"}
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ExitCode != nil {
		t.Errorf("exit code = %d, want nil", *got.ExitCode)
	}
	if !got.TimedOut {
		t.Error("timed_out should be true")
	}
}

func TestRecordTutorial(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := &storage.Execution{ID: "tut1", Mode: storage.ModeTutorial, Command: "cd nonexistent",
		ExitCode: intPtr(1), StepID: 3, Matched: boolPtr(false)}
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Get(ctx, "tut1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StepID != 3 {
		t.Errorf("step_id = %d, want 3", got.StepID)
	}
	if got.Matched == nil || *got.Matched {
		t.Errorf("matched = %v, want false", got.Matched)
	}
}

func TestRecordRejectsUnknownMode(t *testing.T) {
	s := testStore(t)
	err := s.Record(context.Background(), &storage.Execution{ID: "x", Mode: "bogus", Command: "ls"})
	if err == nil {
		t.Fatal("expected constraint error for unknown mode")
	}
}

func TestGetByPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := &storage.Execution{ID: "abc12345-0000-0000-0000-000000000000", Mode: storage.ModeFree, Command: "ls"}
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Get(ctx, "abc12345")
	if err != nil {
		t.Fatalf("Get by prefix: %v", err)
	}
	if got.ID != e.ID {
		t.Errorf("got ID %q, want %q", got.ID, e.ID)
	}
}

func TestGetAmbiguousPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{
		"abc00000-0000-0000-0000-000000000000",
		"abc11111-0000-0000-0000-000000000000",
	} {
		if err := s.Record(ctx, &storage.Execution{ID: id, Mode: storage.ModeFree, Command: "ls"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	if _, err := s.Get(ctx, "abc"); err == nil {
		t.Fatal("expected error for ambiguous prefix")
	}
}

func TestGetPrefixIsLiteral(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, &storage.Execution{ID: "abc12345", Mode: storage.ModeFree, Command: "ls"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	for _, prefix := range []string{"%", "a_c", "abc%"} {
		if _, err := s.Get(ctx, prefix); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Get(%q) err = %v, want ErrNotFound", prefix, err)
		}
	}
	if got, err := s.Get(ctx, "abc1"); err != nil || got.ID != "abc12345" {
		t.Errorf("Get(abc1) = %v, %v", got, err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, cmd := range []string{"one", "two", "three"} {
		if err := s.Record(ctx, &storage.Execution{ID: cmd, Mode: storage.ModeFree, Command: cmd}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	execs, err := s.List(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(execs) != 3 {
		t.Fatalf("got %d executions, want 3", len(execs))
	}
	if execs[0].Command != "three" || execs[2].Command != "one" {
		t.Errorf("order = %q, %q, %q; want newest first", execs[0].Command, execs[1].Command, execs[2].Command)
	}
}

func TestListFilterByMode(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Record(ctx, &storage.Execution{ID: "a1", Mode: storage.ModeFree, Command: "ls"})
	s.Record(ctx, &storage.Execution{ID: "a2", Mode: storage.ModeTutorial, Command: "cd /tmp"})
	s.Record(ctx, &storage.Execution{ID: "a3", Mode: storage.ModeFree, Command: "pwd"})

	execs, err := s.List(ctx, storage.ListOptions{Mode: storage.ModeFree})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(execs) != 2 {
		t.Errorf("got %d free executions, want 2", len(execs))
	}
}

func TestListLimitOffset(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Record(ctx, &storage.Execution{ID: fmt.Sprintf("e%d", i), Mode: storage.ModeFree, Command: fmt.Sprintf("echo %d", i)})
	}

	execs, err := s.List(ctx, storage.ListOptions{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("got %d executions, want 2", len(execs))
	}
	if execs[0].Command != "echo 3" {
		t.Errorf("first = %q, want %q", execs[0].Command, "echo 3")
	}
}

func TestClear(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Record(ctx, &storage.Execution{ID: "c1", Mode: storage.ModeFree, Command: "ls"})
	s.Record(ctx, &storage.Execution{ID: "c2", Mode: storage.ModeCD, Command: "cd a"})

	n, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 2 {
		t.Errorf("cleared %d, want 2", n)
	}

	execs, err := s.List(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(execs) != 0 {
		t.Errorf("got %d executions after clear, want 0", len(execs))
	}
}

func TestOpenFileReopens(t *testing.T) {
	path := t.TempDir() + "/nested/cmdbox.db"
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Record(context.Background(), &storage.Execution{ID: "p1", Mode: storage.ModeFree, Command: "ls"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.Get(context.Background(), "p1"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}

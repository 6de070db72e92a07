package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func testWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(filepath.Join(t.TempDir(), "box"))
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	return ws
}

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	p := filepath.Join(parts...)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", p, err)
	}
	return p
}

func TestNewWorkspace(t *testing.T) {
	ws := testWorkspace(t)

	info, err := os.Stat(ws.Root())
	if err != nil {
		t.Fatalf("root not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("root should be a directory")
	}
	if ws.Dir() != ws.Root() {
		t.Errorf("Dir() = %q, want root %q", ws.Dir(), ws.Root())
	}
	if !filepath.IsAbs(ws.Root()) {
		t.Errorf("root %q should be absolute", ws.Root())
	}
}

func TestNewWorkspaceEmptyRoot(t *testing.T) {
	if _, err := NewWorkspace(""); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestChangeDir_Subdirectory(t *testing.T) {
	ws := testWorkspace(t)
	want := mkdir(t, ws.Root(), "sub")

	got, err := ws.ChangeDir("sub")
	if err != nil {
		t.Fatalf("ChangeDir: %v", err)
	}
	if got != want {
		t.Errorf("ChangeDir = %q, want %q", got, want)
	}
	if ws.Dir() != want {
		t.Errorf("Dir() = %q, want %q", ws.Dir(), want)
	}

	// Relative resolution uses the new current directory.
	nested := mkdir(t, want, "deeper")
	got, err = ws.ChangeDir("deeper")
	if err != nil {
		t.Fatalf("ChangeDir nested: %v", err)
	}
	if got != nested {
		t.Errorf("ChangeDir = %q, want %q", got, nested)
	}

	got, err = ws.ChangeDir("..")
	if err != nil {
		t.Fatalf("ChangeDir ..: %v", err)
	}
	if got != want {
		t.Errorf("ChangeDir .. = %q, want %q", got, want)
	}
}

func TestChangeDir_HomeAlias(t *testing.T) {
	ws := testWorkspace(t)
	sub := mkdir(t, ws.Root(), "a", "b")

	for _, target := range []string{"", "~", "  "} {
		if _, err := ws.ChangeDir("a"); err != nil {
			t.Fatalf("ChangeDir a: %v", err)
		}
		got, err := ws.ChangeDir(target)
		if err != nil {
			t.Fatalf("ChangeDir(%q): %v", target, err)
		}
		if got != ws.Root() {
			t.Errorf("ChangeDir(%q) = %q, want root", target, got)
		}
	}

	got, err := ws.ChangeDir("~/a/b")
	if err != nil {
		t.Fatalf("ChangeDir ~/a/b: %v", err)
	}
	if got != sub {
		t.Errorf("ChangeDir ~/a/b = %q, want %q", got, sub)
	}
}

func TestChangeDir_AbsoluteInside(t *testing.T) {
	ws := testWorkspace(t)
	sub := mkdir(t, ws.Root(), "x")

	got, err := ws.ChangeDir(sub)
	if err != nil {
		t.Fatalf("ChangeDir: %v", err)
	}
	if got != sub {
		t.Errorf("ChangeDir = %q, want %q", got, sub)
	}

	got, err = ws.ChangeDir(ws.Root())
	if err != nil {
		t.Fatalf("ChangeDir root: %v", err)
	}
	if got != ws.Root() {
		t.Errorf("ChangeDir root = %q, want %q", got, ws.Root())
	}
}

func TestChangeDir_RejectsEscapes(t *testing.T) {
	ws := testWorkspace(t)
	mkdir(t, ws.Root(), "sub")
	sibling := mkdir(t, filepath.Dir(ws.Root()), "boxes")

	if _, err := ws.ChangeDir("sub"); err != nil {
		t.Fatalf("ChangeDir sub: %v", err)
	}
	before := ws.Dir()

	targets := []string{
		"../..",
		"../../..",
		"/",
		"/etc",
		filepath.Dir(ws.Root()),
		sibling,
		"../../boxes",
		"../../does-not-exist",
		"~/../..",
	}
	for _, target := range targets {
		got, err := ws.ChangeDir(target)
		if !errors.Is(err, ErrOutsideSandbox) {
			t.Errorf("ChangeDir(%q) error = %v, want ErrOutsideSandbox", target, err)
		}
		if got != before {
			t.Errorf("ChangeDir(%q) returned %q, want unchanged %q", target, got, before)
		}
		if ws.Dir() != before {
			t.Errorf("after ChangeDir(%q) Dir() = %q, want unchanged %q", target, ws.Dir(), before)
		}
	}
}

func TestChangeDir_RejectsSymlinkEscape(t *testing.T) {
	ws := testWorkspace(t)
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(ws.Root(), "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := ws.ChangeDir("link")
	if !errors.Is(err, ErrOutsideSandbox) {
		t.Fatalf("ChangeDir(link) error = %v, want ErrOutsideSandbox", err)
	}
	if ws.Dir() != ws.Root() {
		t.Errorf("Dir() = %q, want root", ws.Dir())
	}
}

func TestChangeDir_FollowsSymlinkInside(t *testing.T) {
	ws := testWorkspace(t)
	realDir := mkdir(t, ws.Root(), "real")
	if err := os.Symlink(realDir, filepath.Join(ws.Root(), "alias")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := ws.ChangeDir("alias")
	if err != nil {
		t.Fatalf("ChangeDir(alias): %v", err)
	}
	if got != realDir {
		t.Errorf("ChangeDir(alias) = %q, want resolved %q", got, realDir)
	}
}

func TestChangeDir_DotDotThroughSymlink(t *testing.T) {
	ws := testWorkspace(t)
	deep := mkdir(t, ws.Root(), "deep", "target")
	if err := os.Symlink(deep, filepath.Join(ws.Root(), "jump")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := ws.ChangeDir("jump/..")
	if err != nil {
		t.Fatalf("ChangeDir(jump/..): %v", err)
	}
	if got != ws.Root() {
		t.Errorf("ChangeDir(jump/..) = %q, want root %q", got, ws.Root())
	}

	if _, err := ws.ChangeDir("jump"); err != nil {
		t.Fatalf("ChangeDir(jump): %v", err)
	}
	got, err = ws.ChangeDir("..")
	if err != nil {
		t.Fatalf("ChangeDir(..): %v", err)
	}
	if want := filepath.Dir(deep); got != want {
		t.Errorf("ChangeDir(..) after jump = %q, want %q", got, want)
	}
}

func TestChangeDir_NotFound(t *testing.T) {
	ws := testWorkspace(t)

	_, err := ws.ChangeDir("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	var pathErr *PathError
	if !errors.As(err, &pathErr) {
		t.Fatalf("error %T should be *PathError", err)
	}
	if pathErr.Target != "nonexistent" {
		t.Errorf("Target = %q, want %q", pathErr.Target, "nonexistent")
	}
	if ws.Dir() != ws.Root() {
		t.Errorf("Dir() = %q, want root", ws.Dir())
	}
}

func TestChangeDir_NotADirectory(t *testing.T) {
	ws := testWorkspace(t)
	if err := os.WriteFile(filepath.Join(ws.Root(), "file.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, target := range []string{"file.txt", "file.txt/inner"} {
		_, err := ws.ChangeDir(target)
		if !errors.Is(err, ErrNotDirectory) {
			t.Errorf("ChangeDir(%q) error = %v, want ErrNotDirectory", target, err)
		}
	}
	if ws.Dir() != ws.Root() {
		t.Errorf("Dir() = %q, want root", ws.Dir())
	}
}

func TestReset(t *testing.T) {
	ws := testWorkspace(t)
	mkdir(t, ws.Root(), "probe", "nested")
	if err := os.WriteFile(filepath.Join(ws.Root(), "probe", "f"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.ChangeDir("probe/nested"); err != nil {
		t.Fatalf("ChangeDir: %v", err)
	}

	if err := ws.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if ws.Dir() != ws.Root() {
		t.Errorf("Dir() = %q, want root after reset", ws.Dir())
	}
	entries, err := os.ReadDir(ws.Root())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries after reset, want 0", len(entries))
	}
}

func TestDir_RecoversFromRemovedDirectory(t *testing.T) {
	ws := testWorkspace(t)
	mkdir(t, ws.Root(), "a", "b")
	if _, err := ws.ChangeDir("a/b"); err != nil {
		t.Fatalf("ChangeDir: %v", err)
	}

	if err := os.RemoveAll(filepath.Join(ws.Root(), "a", "b")); err != nil {
		t.Fatal(err)
	}
	if got, want := ws.Dir(), filepath.Join(ws.Root(), "a"); got != want {
		t.Errorf("Dir() = %q, want nearest ancestor %q", got, want)
	}

	if err := os.RemoveAll(ws.Root()); err != nil {
		t.Fatal(err)
	}
	if got := ws.Dir(); got != ws.Root() {
		t.Errorf("Dir() = %q, want root", got)
	}
	if _, err := os.Stat(ws.Root()); err != nil {
		t.Errorf("root should be recreated: %v", err)
	}
}

func TestRel(t *testing.T) {
	ws := testWorkspace(t)
	mkdir(t, ws.Root(), "a", "b")

	if got := ws.Rel(); got != "~" {
		t.Errorf("Rel() = %q, want ~", got)
	}
	if _, err := ws.ChangeDir("a/b"); err != nil {
		t.Fatal(err)
	}
	if got := ws.Rel(); got != "~/a/b" {
		t.Errorf("Rel() = %q, want ~/a/b", got)
	}
}

func TestChangeDir_Concurrent(t *testing.T) {
	ws := testWorkspace(t)
	for i := 0; i < 4; i++ {
		mkdir(t, ws.Root(), fmt.Sprintf("d%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			targets := []string{fmt.Sprintf("~/d%d", i%4), "..", "/", "~"}
			for _, target := range targets {
				ws.ChangeDir(target)
				if !ws.contains(ws.Dir()) {
					t.Errorf("current directory escaped root: %q", ws.Dir())
				}
			}
		}(i)
	}
	wg.Wait()
}

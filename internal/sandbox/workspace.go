package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
)

// HomeAlias resolves to the sandbox root in ChangeDir.
const HomeAlias = "~"

var (
	ErrOutsideSandbox = errors.New("outside sandbox")
	ErrNotFound       = errors.New("no such file or directory")
	ErrNotDirectory   = errors.New("not a directory")
)

// PathError records a rejected ChangeDir target.
type PathError struct {
	Target string
	Err    error
}

func (e *PathError) Error() string {
	return e.Target + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error { return e.Err }

// Workspace owns the sandbox root and the shared current directory.
//
// The current directory is always the root or a descendant of it. All reads
// and writes go through mu; callers take a snapshot with Dir and run commands
// without holding the lock.
type Workspace struct {
	root string

	mu  sync.Mutex
	cwd string
}

// NewWorkspace creates root if needed and returns a Workspace positioned at it.
// The root is stored in absolute, symlink-free form.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("sandbox root must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating sandbox root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root %q: %w", root, err)
	}
	return &Workspace{root: resolved, cwd: resolved}, nil
}

// Root returns the fixed sandbox root.
func (w *Workspace) Root() string {
	return w.root
}

// Dir returns the current directory. If a command removed it, the nearest
// surviving ancestor inside the root becomes the current directory.
func (w *Workspace) Dir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.repair()
	return w.cwd
}

// repair walks cwd up to an existing directory. Callers hold mu.
func (w *Workspace) repair() {
	for w.cwd != w.root {
		if !w.contains(w.cwd) {
			w.cwd = w.root
			break
		}
		if info, err := os.Stat(w.cwd); err == nil && info.IsDir() {
			return
		}
		w.cwd = filepath.Dir(w.cwd)
	}
	if _, err := os.Stat(w.root); errors.Is(err, fs.ErrNotExist) {
		_ = os.MkdirAll(w.root, 0o755)
	}
}

// ChangeDir resolves target against the current directory and moves there.
// An empty target or "~" returns to the root. On failure the current
// directory is unchanged and the error wraps ErrOutsideSandbox, ErrNotFound
// or ErrNotDirectory.
//
// ".." inside target is collapsed lexically before symlinks are followed, as
// the shell's default "cd -L" does, so "cd link/.." stays where it started.
// The stored directory is the resolved path, so a later "cd .." climbs the
// link target's real parent.
func (w *Workspace) ChangeDir(target string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.repair()
	candidate, err := w.resolve(target)
	if err != nil {
		return w.cwd, &PathError{Target: target, Err: err}
	}
	w.cwd = candidate
	return w.cwd, nil
}

// resolve maps target to a canonical directory inside the root. Callers hold mu.
func (w *Workspace) resolve(target string) (string, error) {
	target = strings.TrimSpace(target)
	switch {
	case target == "" || target == HomeAlias:
		return w.root, nil
	case strings.HasPrefix(target, HomeAlias+"/"):
		target = filepath.Join(w.root, target[len(HomeAlias)+1:])
	case !filepath.IsAbs(target):
		target = filepath.Join(w.cwd, target)
	default:
		target = filepath.Clean(target)
	}

	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		// A missing path is still checked lexically so escapes are reported
		// as escapes rather than as missing directories.
		if !w.contains(target) {
			return "", ErrOutsideSandbox
		}
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		if errors.Is(err, syscall.ENOTDIR) {
			return "", ErrNotDirectory
		}
		return "", err
	}
	if !w.contains(resolved) {
		return "", ErrOutsideSandbox
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !info.IsDir() {
		return "", ErrNotDirectory
	}
	return resolved, nil
}

// contains reports whether path is the root or a strict descendant of it.
// "/srv/box" contains "/srv/box/a" but not "/srv/boxes".
func (w *Workspace) contains(path string) bool {
	if path == w.root {
		return true
	}
	prefix := w.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// Reset deletes everything under the root, recreates it empty and moves the
// current directory back to the root.
func (w *Workspace) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("removing sandbox root: %w", err)
	}
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("recreating sandbox root: %w", err)
	}
	w.cwd = w.root
	return nil
}

// Rel returns the current directory relative to the root, for display.
func (w *Workspace) Rel() string {
	dir := w.Dir()
	rel, err := filepath.Rel(w.root, dir)
	if err != nil || rel == "." {
		return HomeAlias
	}
	return HomeAlias + "/" + filepath.ToSlash(rel)
}

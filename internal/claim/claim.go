package claim

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// Namespace is the fixed directory name under the claim root. All
// cooperating processes must agree on it.
const Namespace = "solocron.lock"

// DefaultMode scopes claim files when no deployment mode is configured,
// so ad-hoc runs never collide with a configured environment.
const DefaultMode = "development"

const fileSuffix = ".lock"

// Dir is a mode-scoped claim directory shared by all cooperating
// processes on a host. Construct one at startup and thread it through
// job registration; there is no global scheduling root.
type Dir struct {
	path string
}

// NewDir resolves <root>/<Namespace>/<mode> and creates the directory
// tree. root defaults to os.TempDir(). Failure to create the tree is
// fatal to the caller: without a claim directory the single-execution
// guarantee cannot be provided, and degrading silently would risk
// duplicate execution.
func NewDir(root, mode string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		root = os.TempDir()
	}
	if strings.TrimSpace(mode) == "" {
		mode = DefaultMode
	}
	path := filepath.Join(root, Namespace, sanitize(mode))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("claim: create directory %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the resolved claim directory.
func (d *Dir) Path() string { return d.path }

// Handle is one process's view of a single (job, due time) claim.
// Exactly one of Release or Discard must be called once the occurrence
// is decided.
type Handle struct {
	path string
	fl   *flock.Flock
}

// Open materializes the claim file for (id, due) and returns a handle
// positioned to race for it. The file is touched in append/create mode
// (never truncated, since another process may already hold its lock)
// before the caller's timer wait, so the path exists deterministically
// by the time anyone tries to acquire it.
func (d *Dir) Open(id string, due time.Time) (*Handle, error) {
	path := d.PathFor(id, due)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("claim: open %s: %w", path, err)
	}
	_ = f.Close()
	return &Handle{path: path, fl: flock.New(path)}, nil
}

// PathFor encodes (id, due) so that distinct occurrences never collide
// and identical occurrences from different processes always resolve to
// the identical path. Due time is truncated to whole seconds; cron
// schedules have minute granularity anyway.
func (d *Dir) PathFor(id string, due time.Time) string {
	name := strconv.FormatInt(due.Unix(), 10) + "." + sanitize(id) + fileSuffix
	return filepath.Join(d.path, name)
}

// Path returns the claim file path backing this handle.
func (h *Handle) Path() string { return h.path }

// TryAcquire attempts a non-blocking exclusive lock on the claim file.
// It returns true if this process won the occurrence, false if another
// process already holds it. It never blocks.
func (h *Handle) TryAcquire() (bool, error) {
	ok, err := h.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("claim: lock %s: %w", h.path, err)
	}
	return ok, nil
}

// Release unlocks and then removes the claim file, in that order, so no
// racer ever observes a held lock on an unlinked inode. Only the lock
// holder may call it. Either step failing indicates the exclusion
// invariant can no longer be trusted; callers treat it as fatal.
func (h *Handle) Release() error {
	if err := h.fl.Unlock(); err != nil {
		return fmt.Errorf("claim: unlock %s: %w", h.path, err)
	}
	if err := os.Remove(h.path); err != nil {
		return fmt.Errorf("claim: remove %s: %w", h.path, err)
	}
	return nil
}

// Discard closes the handle without unlocking or deleting anything. The
// loser of a claim calls it: the winner's lock lives on the winner's own
// file description and the winner is responsible for deletion.
func (h *Handle) Discard() error {
	if err := h.fl.Close(); err != nil {
		return fmt.Errorf("claim: close %s: %w", h.path, err)
	}
	return nil
}

// sanitize maps arbitrary identifiers onto the filename-safe alphabet
// [A-Za-z0-9_-]; everything else becomes '_'.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Package filelock implements spec.md §4.H: the advisory lock manager the
// supervisor consults before handing a file to an editor, so two
// sessions can't clobber each other's edits.
package filelock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/sandinak/sudosh/internal/errs"
)

// Metadata is the content written into a lock file. Token is a random
// identity independent of PID: PIDs get reused across reboots and
// container restarts, so Release compares Token rather than trusting a
// PID match alone to decide a lock file still belongs to this handle.
type Metadata struct {
	Path      string    `json:"path"`
	User      string    `json:"user"`
	PID       int       `json:"pid"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager owns the lock directory. A Manager becomes optional when its
// directory is unusable: editing commands then fail with a clear error,
// while non-editing commands proceed with a warning, per §4.H.
type Manager struct {
	Dir     string
	Timeout time.Duration
	usable  bool
}

// New builds a Manager rooted at dir, creating it if necessary. A
// creation failure leaves the Manager unusable rather than returning an
// error, matching "lock manager becomes optional" in §4.H.
func New(dir string, timeout time.Duration) *Manager {
	m := &Manager{Dir: dir, Timeout: timeout}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("lock directory unusable, file locking disabled")
		return m
	}
	m.usable = true
	return m
}

// Usable reports whether the lock directory is available.
func (m *Manager) Usable() bool { return m.usable }

// lockPathFor computes lock-dir/{canonical path with "/" replaced by
// "_"}.lock, per §4.H step 2.
func (m *Manager) lockPathFor(canonical string) string {
	name := strings.ReplaceAll(strings.TrimPrefix(canonical, string(filepath.Separator)), string(filepath.Separator), "_") + ".lock"
	return filepath.Join(m.Dir, name)
}

// Handle represents an acquired lock; Release must be called by the
// caller's cleanup path.
type Handle struct {
	path string
	meta Metadata
	mgr  *Manager
}

// Acquire implements the §4.H algorithm: resolve the canonical path,
// check for an existing non-stale lock, reap it if stale, then
// atomically create and populate a new lock file.
func (m *Manager) Acquire(path, user string, pid int) (*Handle, error) {
	if !m.usable {
		return nil, errs.New(errs.KindResource, "file lock manager is unavailable")
	}

	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		// the target may not exist yet (new file); fall back to a
		// cleaned absolute path in that case.
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			return nil, errs.Wrap(errs.KindResource, "resolving lock target path", err)
		}
		canonical = filepath.Clean(abs)
	}

	lockPath := m.lockPathFor(canonical)

	if existing, err := m.readLock(lockPath); err == nil {
		if !m.isStale(existing) {
			return nil, errs.New(errs.KindResource,
				fmt.Sprintf("%s is locked by %s (pid %d) since %s", canonical, existing.User, existing.PID, existing.CreatedAt.Format(time.RFC3339))).
				WithSuggestion("wait for the other session to finish, or ask them to exit their editor")
		}
		os.Remove(lockPath)
	}

	fd, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, "creating lock file", err)
	}
	defer fd.Close()

	if err := unix.Flock(int(fd.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		os.Remove(lockPath)
		return nil, errs.Wrap(errs.KindResource, "applying advisory lock", err)
	}

	meta := Metadata{Path: canonical, User: user, PID: pid, Token: uuid.NewString(), CreatedAt: time.Now()}
	data, err := json.Marshal(meta)
	if err != nil {
		os.Remove(lockPath)
		return nil, errs.Wrap(errs.KindResource, "marshaling lock metadata", err)
	}
	if _, err := fd.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, errs.Wrap(errs.KindResource, "writing lock metadata", err)
	}

	return &Handle{path: lockPath, meta: meta, mgr: m}, nil
}

func (m *Manager) readLock(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

// isStale reports whether the owning process is gone or the lock has
// outlived the configured timeout.
func (m *Manager) isStale(meta Metadata) bool {
	if time.Since(meta.CreatedAt) >= m.Timeout {
		return true
	}
	alive, err := process.PidExists(int32(meta.PID))
	if err != nil {
		return false // can't tell: don't reap on uncertainty
	}
	return !alive
}

// Release removes the lock file, but only if its stored metadata still
// matches this handle, per §4.H step 6.
func (h *Handle) Release() error {
	current, err := h.mgr.readLock(h.path)
	if err != nil {
		return nil // already gone
	}
	if current.Token != h.meta.Token || current.User != h.meta.User || current.Path != h.meta.Path {
		return nil // someone else's lock now occupies this path; leave it alone
	}
	return os.Remove(h.path)
}

// ReapStale scans the lock directory at startup and removes every stale
// entry, per §4.H's "startup reaps stale locks".
func (m *Manager) ReapStale() {
	if !m.usable {
		return
	}
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		path := filepath.Join(m.Dir, e.Name())
		meta, err := m.readLock(path)
		if err != nil {
			continue
		}
		if m.isStale(meta) {
			os.Remove(path)
		}
	}
}

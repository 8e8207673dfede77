package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sandinak/sudosh/internal/errs"
)

// entry is the on-disk record for one cached authentication success,
// per §3's "Authentication cache entry": username, timestamp, invoking
// process-group id, invoker numeric id, tty name, and hostname.
type entry struct {
	User      string    `json:"user"`
	UID       uint32    `json:"uid"`
	PGID      int       `json:"pgid"`
	TTY       string    `json:"tty"`
	Hostname  string    `json:"hostname"`
	CreatedAt time.Time `json:"created_at"`
}

// Cache is the per-(user,tty) authentication cache described in §4.C: a
// successful authentication is remembered for Timeout so repeated
// commands in the same session don't re-prompt. Entries are files owned
// 0600 under Dir, named by a hash of user+tty so the filename itself
// leaks no identity information.
type Cache struct {
	Dir     string
	Timeout time.Duration
}

// NewCache builds a Cache rooted at dir with the given timeout.
func NewCache(dir string, timeout time.Duration) *Cache {
	return &Cache{Dir: dir, Timeout: timeout}
}

func (c *Cache) pathFor(user, tty string) string {
	h := sha256.Sum256([]byte(user + "\x00" + tty))
	return filepath.Join(c.Dir, hex.EncodeToString(h[:]))
}

// Valid reports whether a non-expired cache entry exists for (user, tty,
// uid) and has not been tampered with. Per §3, "ownership or permission
// drift" invalidates an entry in addition to absence or expiry: the file
// must still be mode 0600 and owned by root (this cache is only ever
// written by the setuid-root supervisor), not just well-formed JSON.
func (c *Cache) Valid(user, tty string, uid uint32) bool {
	path := c.pathFor(user, tty)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.Mode().Perm() != 0o600 {
		return false // tampered-with permissions invalidate the entry
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st.Uid != 0 {
		return false // tampered-with ownership invalidates the entry
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return false
	}
	if e.User != user || e.TTY != tty || e.UID != uid {
		return false
	}
	return time.Since(e.CreatedAt) < c.Timeout
}

// Record writes a fresh cache entry for (user, tty), using a
// write-to-temp-then-rename sequence so a concurrent reader never
// observes a partially written file.
func (c *Cache) Record(user, tty string, uid uint32, hostname string) error {
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return errs.Wrap(errs.KindResource, "creating auth cache directory", err)
	}
	pgid, err := unix.Getpgid(0)
	if err != nil {
		pgid = 0
	}
	e := entry{User: user, UID: uid, PGID: pgid, TTY: tty, Hostname: hostname, CreatedAt: time.Now()}
	data, err := json.Marshal(e)
	if err != nil {
		return errs.Wrap(errs.KindResource, "marshaling auth cache entry", err)
	}

	dst := c.pathFor(user, tty)
	tmp := dst + fmt.Sprintf(".tmp-%d", os.Getpid())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errs.Wrap(errs.KindResource, "writing auth cache entry", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindResource, "installing auth cache entry", err)
	}
	return nil
}

// InvalidateUser removes every cache entry belonging to user across all
// ttys, for the "-K" flag (§4.C "clear all entries for a user").
func (c *Cache) InvalidateUser(user string) error {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.KindResource, "listing auth cache directory", err)
	}
	for _, e := range entries {
		path := filepath.Join(c.Dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec entry
		if json.Unmarshal(data, &rec) != nil {
			continue
		}
		if rec.User == user {
			os.Remove(path)
		}
	}
	return nil
}

// Reap removes every expired entry, called at supervisor startup to keep
// the cache directory from growing unbounded.
func (c *Cache) Reap() {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return
	}
	for _, de := range entries {
		path := filepath.Join(c.Dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec entry
		if json.Unmarshal(data, &rec) != nil {
			os.Remove(path)
			continue
		}
		if time.Since(rec.CreatedAt) >= c.Timeout {
			os.Remove(path)
		}
	}
}

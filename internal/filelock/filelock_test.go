package filelock

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	m := New(t.TempDir(), time.Minute)
	require.True(t, m.Usable())

	target := t.TempDir() + "/file.txt"
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	h, err := m.Acquire(target, "alice", os.Getpid())
	require.NoError(t, err)
	require.NotNil(t, h)

	require.NoError(t, h.Release())
}

func TestAcquireFailsWhenAlreadyHeld(t *testing.T) {
	m := New(t.TempDir(), time.Minute)
	target := t.TempDir() + "/file.txt"
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	h, err := m.Acquire(target, "alice", os.Getpid())
	require.NoError(t, err)
	defer h.Release()

	_, err = m.Acquire(target, "bob", os.Getpid())
	assert.Error(t, err)
}

func TestAcquireReapsStaleLockFromDeadProcess(t *testing.T) {
	m := New(t.TempDir(), time.Hour)
	target := t.TempDir() + "/file.txt"
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	// a pid almost certain not to be alive
	deadPID := 1 << 30
	h, err := m.Acquire(target, "alice", deadPID)
	require.NoError(t, err)
	// forcibly detach without releasing, to simulate a crashed holder
	h.mgr = nil

	h2, err := m.Acquire(target, "bob", os.Getpid())
	require.NoError(t, err)
	require.NoError(t, h2.Release())
}

func TestReleaseOnlyRemovesMatchingMetadata(t *testing.T) {
	m := New(t.TempDir(), time.Minute)
	target := t.TempDir() + "/file.txt"
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	h, err := m.Acquire(target, "alice", os.Getpid())
	require.NoError(t, err)

	// give the handle a token that no longer matches the lock file, as if
	// another process had taken the lock since
	h.meta.Token = "another-holder"

	require.NoError(t, h.Release()) // should be a no-op, not an error
	_, statErr := os.Stat(h.path)
	assert.NoError(t, statErr, "a lock whose metadata does not match must be left in place")
}

func TestManagerUnusableDirReturnsError(t *testing.T) {
	m := &Manager{Dir: "/nonexistent", Timeout: time.Minute}
	_, err := m.Acquire("/tmp/whatever", "alice", os.Getpid())
	assert.Error(t, err)
}

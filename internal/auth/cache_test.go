package auth

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRecordAndValid(t *testing.T) {
	c := NewCache(t.TempDir(), time.Minute)
	uid := uint32(os.Getuid())

	assert.False(t, c.Valid("alice", "pts/0", uid))

	require.NoError(t, c.Record("alice", "pts/0", uid, "testhost"))
	assert.True(t, c.Valid("alice", "pts/0", uid))

	// a different tty is a different cache key
	assert.False(t, c.Valid("alice", "pts/1", uid))

	// a uid mismatch invalidates the entry even if user/tty match
	assert.False(t, c.Valid("alice", "pts/0", uid+1))
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(t.TempDir(), time.Millisecond)
	uid := uint32(os.Getuid())
	require.NoError(t, c.Record("bob", "pts/2", uid, "testhost"))
	time.Sleep(5 * time.Millisecond)
	assert.False(t, c.Valid("bob", "pts/2", uid))
}

func TestCacheInvalidateUser(t *testing.T) {
	c := NewCache(t.TempDir(), time.Minute)
	uid := uint32(os.Getuid())
	require.NoError(t, c.Record("carol", "pts/0", uid, "testhost"))
	require.NoError(t, c.Record("carol", "pts/1", uid, "testhost"))
	require.NoError(t, c.Record("dave", "pts/0", uid, "testhost"))

	require.NoError(t, c.InvalidateUser("carol"))

	assert.False(t, c.Valid("carol", "pts/0", uid))
	assert.False(t, c.Valid("carol", "pts/1", uid))
	assert.True(t, c.Valid("dave", "pts/0", uid))
}

func TestCacheReapRemovesExpiredOnly(t *testing.T) {
	c := NewCache(t.TempDir(), 5*time.Millisecond)
	uid := uint32(os.Getuid())
	require.NoError(t, c.Record("erin", "pts/0", uid, "testhost"))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Record("frank", "pts/0", uid, "testhost"))

	c.Reap()

	assert.False(t, c.Valid("erin", "pts/0", uid))
	assert.True(t, c.Valid("frank", "pts/0", uid))
}

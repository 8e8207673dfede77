package auth

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	valid map[string]string
}

func (f *fakeVerifier) Verify(user, password string) error {
	if f.valid[user] == password {
		return nil
	}
	return fmt.Errorf("invalid credentials")
}

func newTestAuthenticator(t *testing.T, valid map[string]string) *Authenticator {
	t.Helper()
	a := New(&fakeVerifier{valid: valid}, NewCache(t.TempDir(), time.Minute), NewThrottle())
	return a
}

func TestEnsurePromptsOnFirstUseAndCaches(t *testing.T) {
	a := newTestAuthenticator(t, map[string]string{"alice": "correct horse"})
	calls := 0
	a.Prompt = func(user string) (string, error) {
		calls++
		return "correct horse", nil
	}

	require.NoError(t, a.Ensure("alice", "pts/0", 1000, "testhost"))
	assert.Equal(t, 1, calls)

	// second call should hit the cache and not prompt again
	require.NoError(t, a.Ensure("alice", "pts/0", 1000, "testhost"))
	assert.Equal(t, 1, calls)
}

func TestEnsureFailsOnWrongPassword(t *testing.T) {
	a := newTestAuthenticator(t, map[string]string{"bob": "hunter2"})
	a.Prompt = func(user string) (string, error) { return "wrong", nil }

	err := a.Ensure("bob", "pts/0", 1000, "testhost")
	require.Error(t, err)
}

func TestInvalidateClearsCache(t *testing.T) {
	a := newTestAuthenticator(t, map[string]string{"carol": "s3cr3t"})
	a.Prompt = func(user string) (string, error) { return "s3cr3t", nil }

	require.NoError(t, a.Ensure("carol", "pts/0", 1000, "testhost"))
	require.NoError(t, a.Invalidate("carol"))

	calls := 0
	a.Prompt = func(user string) (string, error) {
		calls++
		return "s3cr3t", nil
	}
	require.NoError(t, a.Ensure("carol", "pts/0", 1000, "testhost"))
	assert.Equal(t, 1, calls, "invalidated cache should force a re-prompt")
}

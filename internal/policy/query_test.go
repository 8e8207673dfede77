package policy

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWithRules(t *testing.T, rules string) *Store {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/sudoers"
	require.NoError(t, os.WriteFile(path, []byte(rules), 0o644))
	s := NewStore(Options{SudoersPath: path, Host: "testhost"})
	t.Cleanup(func() { s.Close() })
	return s
}

// A later rule denying (via negation) a command must not retract an
// earlier rule's grant for that same command: §4.B OR-accumulates the
// authorized bit across every matching rule rather than letting the
// last match win.
func TestAuthorizeOrAccumulatesAcrossRules(t *testing.T) {
	store := storeWithRules(t, ""+
		"alice ALL = (root) /usr/bin/systemctl *\n"+
		"alice ALL = (root) !/usr/bin/systemctl restart sshd\n")

	d := store.Authorize("alice", "/usr/bin/systemctl restart sshd", "root")
	assert.True(t, d.Allowed, "an earlier rule's grant must survive a later, narrower negation")
}

// NOPASSWD is OR-accumulated too: if any matching rule grants it, the
// decision is NOPASSWD even when an earlier matching rule required a
// password for the same command.
func TestAuthorizeNoPasswdOrAccumulates(t *testing.T) {
	store := storeWithRules(t, ""+
		"alice ALL = (root) /usr/bin/systemctl *\n"+
		"alice ALL = (root) NOPASSWD: /usr/bin/systemctl *\n")

	d := store.Authorize("alice", "/usr/bin/systemctl status nginx", "root")
	require.True(t, d.Allowed)
	assert.True(t, d.NoPasswd)
}

// A negated-only match contributes nothing: it neither grants nor denies
// on its own, and a user with no other matching rule stays unauthorized.
func TestAuthorizeNegationAloneGrantsNothing(t *testing.T) {
	store := storeWithRules(t, "alice ALL = (root) !/usr/bin/systemctl restart sshd\n")

	d := store.Authorize("alice", "/usr/bin/systemctl restart sshd", "root")
	assert.False(t, d.Allowed)
}

func TestAuthorizeRespectsRunAsTarget(t *testing.T) {
	store := storeWithRules(t, "alice ALL = (postgres) /usr/bin/psql\n")

	assert.True(t, store.Authorize("alice", "/usr/bin/psql", "postgres").Allowed)
	assert.False(t, store.Authorize("alice", "/usr/bin/psql", "root").Allowed)
}

func TestHasAnyPrivilegeAndMayRunAs(t *testing.T) {
	store := storeWithRules(t, "alice ALL = (postgres) /usr/bin/psql\n")

	assert.True(t, store.HasAnyPrivilege("alice"))
	assert.False(t, store.HasAnyPrivilege("bob"))
	assert.True(t, store.MayRunAs("alice", "postgres"))
	assert.False(t, store.MayRunAs("alice", "root"))
}

package validator

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandinak/sudosh/internal/classifier"
	"github.com/sandinak/sudosh/internal/pipeline"
	"github.com/sandinak/sudosh/internal/policy"
)

func buildPlan(t *testing.T, line string) *pipeline.Plan {
	t.Helper()
	toks, err := classifier.Tokenize(line)
	require.NoError(t, err)
	stages, err := classifier.Classify(toks)
	require.NoError(t, err)
	plan, err := pipeline.Build(line, stages, "/home/alice", pipeline.HomeDirs{Invoker: "/home/alice", Target: "/root"})
	require.NoError(t, err)
	return plan
}

func storeWithRule(t *testing.T, rule string) *policy.Store {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/sudoers"
	require.NoError(t, os.WriteFile(path, []byte(rule), 0o644))
	return policy.NewStore(policy.Options{SudoersPath: path, Host: "testhost"})
}

func TestValidateAdmitsAuthorizedSafeCommand(t *testing.T) {
	plan := buildPlan(t, "ls -la /tmp")
	store := storeWithRule(t, "alice ALL = (root) ls *")

	res, err := Validate(Request{Plan: plan, User: "alice", Target: "root", Store: store})
	require.NoError(t, err)
	assert.True(t, res.Admitted)
}

func TestValidateRejectsUnauthorizedCommand(t *testing.T) {
	plan := buildPlan(t, "ls -la /tmp")
	store := storeWithRule(t, "alice ALL = (root) whoami")

	_, err := Validate(Request{Plan: plan, User: "alice", Target: "root", Store: store})
	assert.Error(t, err)
}

func TestValidateRejectsNonSecureEditor(t *testing.T) {
	plan := buildPlan(t, "emacs /etc/hosts")
	store := storeWithRule(t, "alice ALL = (root) ALL")

	_, err := Validate(Request{Plan: plan, User: "alice", Target: "root", Store: store})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-secure editor")
}

func TestValidateRejectsRedirectionOutsideHome(t *testing.T) {
	plan := buildPlan(t, "cat /srv/shared/hosts > /srv/shared/evil")
	store := storeWithRule(t, "alice ALL = (root) ALL")

	_, err := Validate(Request{Plan: plan, User: "alice", Target: "root", Store: store, InvokerHome: "/home/alice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside permitted directories")
}

func TestValidateRejectsRedirectionToEtcWithSpecificMessage(t *testing.T) {
	plan := buildPlan(t, "echo hi > /etc/motd")
	store := storeWithRule(t, "alice ALL = (root) ALL")

	_, err := Validate(Request{Plan: plan, User: "alice", Target: "root", Store: store, InvokerHome: "/home/alice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirection to system configuration directory (/etc/) is not allowed")
}

func TestValidateRejectsRedirectionToRootHomeWithSpecificMessage(t *testing.T) {
	plan := buildPlan(t, "echo hi > /root/out.txt")
	store := storeWithRule(t, "alice ALL = (root) ALL")

	_, err := Validate(Request{Plan: plan, User: "alice", Target: "root", Store: store, InvokerHome: "/home/alice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root account's home directory")
}

func TestValidateDangerousRecursiveForceRequiresConfirmation(t *testing.T) {
	plan := buildPlan(t, "rm -rf /tmp/scratch")
	store := storeWithRule(t, "alice ALL = (root) rm *")

	res, err := Validate(Request{
		Plan: plan, User: "alice", Target: "root", Store: store,
		InteractiveConfirm: func(string) bool { return false },
	})
	require.NoError(t, err)
	assert.False(t, res.Admitted)
}

func TestValidateDangerousRejectedUnderAutomation(t *testing.T) {
	plan := buildPlan(t, "rm -rf /tmp/scratch")
	store := storeWithRule(t, "alice ALL = (root) rm *")

	_, err := Validate(Request{Plan: plan, User: "alice", Target: "root", Store: store, Automation: true})
	assert.Error(t, err)
}

func TestValidateAllowsGlobalAllWithoutConfirmation(t *testing.T) {
	plan := buildPlan(t, "rm -rf /tmp/scratch")
	store := storeWithRule(t, "alice ALL = (root) ALL")

	res, err := Validate(Request{Plan: plan, User: "alice", Target: "root", Store: store})
	require.NoError(t, err)
	assert.True(t, res.Admitted)
}

func TestValidateRejectsMultiStagePipelineWithDangerousStage(t *testing.T) {
	plan := buildPlan(t, "ls | rm -rf /tmp/x")
	store := storeWithRule(t, "alice ALL = (root) ALL")

	_, err := Validate(Request{Plan: plan, User: "alice", Target: "root", Store: store})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "multi-stage"))
}

func TestValidateRejectsPathTraversal(t *testing.T) {
	plan := buildPlan(t, "cat /home/alice/../../etc/shadow")
	store := storeWithRule(t, "alice ALL = (root) ALL")

	_, err := Validate(Request{Plan: plan, User: "alice", Target: "root", Store: store})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traversal")
}

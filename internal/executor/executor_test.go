package executor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandinak/sudosh/internal/classifier"
	"github.com/sandinak/sudosh/internal/identity"
	"github.com/sandinak/sudosh/internal/pipeline"
)

func selfIdentity() *identity.Identity {
	return &identity.Identity{UID: uint32(os.Getuid()), GID: uint32(os.Getgid())}
}

func buildExecPlan(t *testing.T, line string) *pipeline.Plan {
	t.Helper()
	toks, err := classifier.Tokenize(line)
	require.NoError(t, err)
	stages, err := classifier.Classify(toks)
	require.NoError(t, err)
	plan, err := pipeline.Build(line, stages, t.TempDir(), pipeline.HomeDirs{Invoker: "/home/alice", Target: "/root"})
	require.NoError(t, err)
	return plan
}

func TestRunSingleStageCapturesOutput(t *testing.T) {
	plan := buildExecPlan(t, "echo hello")

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	res, err := Run(Options{
		Plan:         plan,
		Target:       selfIdentity(),
		EnvWhitelist: map[string]string{"HOME": "/home/alice"},
		SafePATH:     "/usr/bin:/bin",
		Stdin:        nil,
		Stdout:       w,
		Stderr:       w,
	})
	w.Close()
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	buf := make([]byte, 64)
	n, _ := r.Read(buf)
	assert.Contains(t, string(buf[:n]), "hello")
}

func TestRunCommandNotFound(t *testing.T) {
	plan := buildExecPlan(t, "this-command-does-not-exist-xyz")

	_, err := Run(Options{
		Plan:         plan,
		Target:       selfIdentity(),
		EnvWhitelist: map[string]string{},
		SafePATH:     "/usr/bin:/bin",
	})
	assert.Error(t, err)
}

func TestVerifyCredentialDropDetectsMismatch(t *testing.T) {
	mismatched := &identity.Identity{UID: uint32(os.Getuid()) + 1, GID: uint32(os.Getgid())}
	err := verifyCredentialDrop(os.Getpid(), mismatched)
	assert.Error(t, err)
}

func TestVerifyCredentialDropAcceptsMatch(t *testing.T) {
	err := verifyCredentialDrop(os.Getpid(), selfIdentity())
	assert.NoError(t, err)
}

func TestRunPipelinePropagatesLastStageExitCode(t *testing.T) {
	plan := buildExecPlan(t, "echo hello | grep hello")

	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer devnull.Close()

	res, err := Run(Options{
		Plan:         plan,
		Target:       selfIdentity(),
		EnvWhitelist: map[string]string{},
		SafePATH:     "/usr/bin:/bin",
		Stdout:       devnull,
		Stderr:       devnull,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Len(t, res.StageCodes, 2)
}

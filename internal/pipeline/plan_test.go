package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandinak/sudosh/internal/classifier"
)

func classifyLine(t *testing.T, line string) []classifier.Stage {
	t.Helper()
	toks, err := classifier.Tokenize(line)
	require.NoError(t, err)
	stages, err := classifier.Classify(toks)
	require.NoError(t, err)
	return stages
}

var homes = HomeDirs{Invoker: "/home/alice", Target: "/root"}

func TestBuildSimpleRedirection(t *testing.T) {
	stages := classifyLine(t, "cat < in.txt > out.txt")
	plan, err := Build("cat < in.txt > out.txt", stages, "/home/alice/work", homes)
	require.NoError(t, err)
	require.Len(t, plan.Stages, 1)
	assert.Equal(t, "/home/alice/work/in.txt", plan.Stages[0].InputPath)
	assert.Equal(t, "/home/alice/work/out.txt", plan.Stages[0].OutputPath)
}

func TestBuildRejectsOutputRedirectBeforeLastStage(t *testing.T) {
	stages := classifyLine(t, "cat file > out.txt | grep foo")
	_, err := Build("", stages, "/home/alice", homes)
	assert.Error(t, err)
}

func TestBuildAllowsTrailingPipelineOutputRedirect(t *testing.T) {
	stages := classifyLine(t, "cat file.txt | grep foo > out.txt")
	plan, err := Build("", stages, "/home/alice", homes)
	require.NoError(t, err)
	require.Len(t, plan.Stages, 2)
	assert.Equal(t, "/home/alice/out.txt", plan.Stages[1].OutputPath)
}

func TestBuildRejectsInputRedirectAfterFirstStage(t *testing.T) {
	stages := classifyLine(t, "cat file.txt | grep < other.txt")
	_, err := Build("", stages, "/home/alice", homes)
	assert.Error(t, err)
}

func TestBuildExpandsTilde(t *testing.T) {
	stages := classifyLine(t, "cat > ~/notes.txt")
	plan, err := Build("", stages, "/home/alice", homes)
	require.NoError(t, err)
	assert.Equal(t, "/home/alice/notes.txt", plan.Stages[0].OutputPath)
}

func TestBuildRejectsEmptyPlan(t *testing.T) {
	_, err := Build("", nil, "/home/alice", homes)
	assert.Error(t, err)
}

package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseDetector() *Detector {
	return &Detector{
		Environ:     func() []string { return []string{"TERM=xterm"} },
		StdinIsTTY:  func() bool { return true },
		StdoutIsTTY: func() bool { return true },
		Getwd:       func() (string, error) { return "/home/alice", nil },
		ParentChain: func(int) []string { return []string{"bash"} },
		Threshold:   70,
	}
}

func TestClassifyInteractiveByDefault(t *testing.T) {
	d := baseDetector()
	c := d.Classify()
	assert.False(t, c.IsAutomation)
	assert.False(t, c.IsAIAssistant)
}

func TestClassifyAnsibleEnvVarIsAutomation(t *testing.T) {
	d := baseDetector()
	d.Environ = func() []string { return []string{"ANSIBLE_BECOME_USER=root", "TERM=xterm"} }

	c := d.Classify()
	assert.True(t, c.IsAutomation)
	assert.GreaterOrEqual(t, c.Confidence, 70)
}

func TestClassifyPlaybookRunnerParentIsAutomation(t *testing.T) {
	d := baseDetector()
	d.ParentChain = func(int) []string { return []string{"ansible-playbook"} }

	c := d.Classify()
	assert.True(t, c.IsAutomation)
}

func TestClassifyNonTTYAloneStaysBelowThreshold(t *testing.T) {
	d := baseDetector()
	d.StdinIsTTY = func() bool { return false }
	d.ParentChain = func(int) []string { return nil }

	c := d.Classify()
	assert.False(t, c.IsAutomation, "a single weak signal should not cross the default threshold")
}

func TestClassifyMultipleSignalsGetBonus(t *testing.T) {
	d := baseDetector()
	d.StdinIsTTY = func() bool { return false }
	d.StdoutIsTTY = func() bool { return false }
	d.Getwd = func() (string, error) { return "/home/ci/playbooks/site", nil }

	c := d.Classify()
	assert.True(t, c.IsAutomation)
}

func TestClassifyExplicitOverride(t *testing.T) {
	d := baseDetector()
	d.ForceAutomation = true

	c := d.Classify()
	assert.True(t, c.IsAutomation)
	assert.Equal(t, 100, c.Confidence)
}

func TestClassifyAIAssistantMarkerShortCircuits(t *testing.T) {
	d := baseDetector()
	d.Environ = func() []string { return []string{"CLAUDE_CODE=1"} }

	c := d.Classify()
	assert.True(t, c.IsAIAssistant)
	assert.False(t, c.IsAutomation, "AI assistant classification short-circuits before the automation score")
}

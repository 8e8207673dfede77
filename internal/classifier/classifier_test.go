package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTokenize(t *testing.T, line string) []Token {
	t.Helper()
	toks, err := Tokenize(line)
	require.NoError(t, err)
	return toks
}

func TestTokenizeQuotingAndEscapes(t *testing.T) {
	toks := mustTokenize(t, `grep -e 'foo bar' "baz qux" esc\ aped`)
	var words []string
	for _, tok := range toks {
		if tok.Kind == TokenWord {
			words = append(words, tok.Value)
		}
	}
	assert.Equal(t, []string{"grep", "-e", "foo bar", "baz qux", "esc aped"}, words)
}

func TestTokenizeRejectsInjectionMetacharacters(t *testing.T) {
	for _, line := range []string{
		"ls; rm -rf /",
		"ls && rm -rf /",
		"ls || true",
		"ls & rm -rf /",
		"echo `whoami`",
		"echo $(whoami)",
	} {
		_, err := Tokenize(line)
		assert.Error(t, err, "expected rejection for %q", line)
	}
}

func TestTokenizeRejectsEmbeddedNulAndNewline(t *testing.T) {
	_, err := Tokenize("ls \x00 foo")
	assert.Error(t, err)

	_, err = Tokenize("ls\nfoo")
	assert.Error(t, err)
}

func TestTokenizePipesAndRedirections(t *testing.T) {
	toks := mustTokenize(t, "cat in.txt | grep foo > out.txt")
	kinds := make([]TokenKind, 0, len(toks))
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Contains(t, kinds, TokenPipe)
	assert.Contains(t, kinds, TokenRedirectOut)
}

func TestClassifyAssignsExpectedClasses(t *testing.T) {
	cases := map[string]Class{
		"cd /tmp":                 ClassBuiltin,
		"ls -la":                  ClassSafeReadOnly,
		"grep foo bar.txt":        ClassTextProcessing,
		"vim /etc/hosts":          ClassSecureEditor,
		"emacs /etc/hosts":        ClassNonSecureEditor,
		"bash -c 'ls'":            ClassShell,
		"sudo ls":                 ClassPrivilegeEscalation,
		"systemctl restart nginx": ClassConditionallyBlocked,
		"rm -rf /tmp/x":           ClassDangerous,
		"less /etc/hosts":         ClassPager,
	}
	for line, want := range cases {
		toks := mustTokenize(t, line)
		stages, err := Classify(toks)
		require.NoError(t, err)
		require.Len(t, stages, 1)
		assert.Equal(t, want, stages[0].Class, "line: %s", line)
	}
}

func TestClassifyDetectsShellDashC(t *testing.T) {
	toks := mustTokenize(t, "sh -c 'rm -rf /'")
	stages, err := Classify(toks)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, ClassShell, stages[0].Class)
	assert.True(t, stages[0].HasTrailingCOption)
}

func TestClassifySplitsPipelineStages(t *testing.T) {
	toks := mustTokenize(t, "cat file.txt | grep foo | sort")
	stages, err := Classify(toks)
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.True(t, stages[0].PipelineSafe())
	assert.True(t, stages[1].PipelineSafe())
	assert.True(t, stages[2].PipelineSafe())
}

func TestClassifyDangerousStageNotPipelineSafe(t *testing.T) {
	toks := mustTokenize(t, "rm -rf /tmp/x")
	stages, err := Classify(toks)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.False(t, stages[0].PipelineSafe())
}

func TestProgramSlotEscapeDetectsAwkSystem(t *testing.T) {
	toks := mustTokenize(t, `awk 'BEGIN{system("id")}'`)
	stages, err := Classify(toks)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.True(t, ProgramSlotEscape(stages[0]))
}

func TestRedirectionParsedOnStage(t *testing.T) {
	toks := mustTokenize(t, "sort < in.txt > out.txt")
	stages, err := Classify(toks)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	require.NotNil(t, stages[0].Input)
	require.NotNil(t, stages[0].Output)
	assert.Equal(t, "in.txt", stages[0].Input.Target)
	assert.Equal(t, "out.txt", stages[0].Output.Target)
}

package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkChainsHashesAcrossEvents(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, nil, "sudosh")

	s.SessionStart("alice", "pts/0", SessionInteractive, CorrelationID())
	s.Command("alice", "root", "ls -la", CorrelationID(), 0)
	s.SessionEnd("alice", "pts/0", CorrelationID())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var prevHash string
	for i, line := range lines {
		var wrapper map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(line), &wrapper))
		var inner Event
		require.NoError(t, json.Unmarshal(wrapper["event"], &inner))
		assert.Equal(t, uint64(i+1), inner.Sequence)
		if i > 0 {
			assert.Equal(t, prevHash, inner.PrevHash)
		}
		assert.NotEmpty(t, inner.EventHash)
		prevHash = inner.EventHash
	}
}

func TestCorrelationIDsAreUnique(t *testing.T) {
	a := CorrelationID()
	b := CorrelationID()
	assert.NotEqual(t, a, b)
}

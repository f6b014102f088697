package sink

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

func TestSink_DedupByDestination(t *testing.T) {
	s := New()
	assert.True(t, s.Add(1, 2, 5))
	assert.False(t, s.Add(1, 2, 9), "same destination, later timestamp")
	assert.True(t, s.Add(3, 2, 9))

	assert.Equal(t, 2, s.Size())
	assert.Equal(t, int64(3), s.MatchedPaths())
	assert.True(t, s.Contains(1, 2))
	assert.False(t, s.Contains(2, 1))

	assert.Equal(t, []types.Match{
		{Source: 1, Destination: 2, Timestamp: 5},
		{Source: 3, Destination: 2, Timestamp: 9},
	}, s.Entries())
}

func TestSink_ExpireBefore(t *testing.T) {
	s := New()
	s.Add(1, 2, 1)
	s.Add(1, 3, 4)
	s.Add(2, 3, 2)

	assert.Equal(t, 2, s.ExpireBefore(3))
	assert.Equal(t, 1, s.Size())
	assert.True(t, s.Contains(1, 3))
}

func TestSink_Prune(t *testing.T) {
	s := New()
	s.Add(1, 2, 1)
	s.Add(1, 3, 1)
	s.Add(2, 3, 1)

	removed := s.Prune(func(root, _ types.Vertex) bool { return root != 1 })
	assert.Equal(t, 2, removed)
	assert.Equal(t, []types.Match{{Source: 2, Destination: 3, Timestamp: 1}}, s.Entries())
	assert.Equal(t, int64(3), s.MatchedPaths(), "pruning does not rewrite history")
}

func TestSink_Export(t *testing.T) {
	s := New()
	s.Add(4, 5, 7)

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf))
	assert.Equal(t, "source,destination,timestamp\n4,5,7\n", buf.String())
}

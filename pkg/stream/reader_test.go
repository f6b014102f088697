package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

func readAll(t *testing.T, r *Reader) []types.Arrival {
	t.Helper()
	var out []types.Arrival
	for {
		a, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, a)
	}
}

func TestReader_NormalizesAndFilters(t *testing.T) {
	input := `# s d l t
1 2 1 100

2 3 7 101
2 3 1 102
3 4 1 105
`
	r := NewReader(strings.NewReader(input), Options{Accept: func(l types.Label) bool { return l == 1 }})
	got := readAll(t, r)

	assert.Equal(t, []types.Arrival{
		{Source: 1, Dest: 2, Label: 1, Time: 0},
		{Source: 2, Dest: 3, Label: 1, Time: 2},
		{Source: 3, Dest: 4, Label: 1, Time: 5},
	}, got)
	st := r.Stats()
	assert.Equal(t, 6, st.Lines)
	assert.Equal(t, int64(3), st.Records)
	assert.Equal(t, int64(1), st.Filtered)
}

func TestReader_OutOfOrder(t *testing.T) {
	input := "1 2 1 10\n2 3 1 12\n3 4 1 11\n4 5 1 9\n5 6 1 12\n"

	t.Run("skip", func(t *testing.T) {
		r := NewReader(strings.NewReader(input), Options{})
		got := readAll(t, r)
		require.Len(t, got, 3)
		assert.Equal(t, int64(2), got[2].Time, "equal timestamps are in order")
		assert.Equal(t, int64(2), r.Stats().OutOfOrder)
	})

	t.Run("fail", func(t *testing.T) {
		r := NewReader(strings.NewReader(input), Options{OutOfOrder: Fail})
		_, err := r.Next()
		require.NoError(t, err)
		_, err = r.Next()
		require.NoError(t, err)

		_, err = r.Next()
		require.ErrorIs(t, err, ErrOutOfOrder)
		var le *LineError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, 3, le.Line)
	})
}

func TestReader_Malformed(t *testing.T) {
	r := NewReader(strings.NewReader("1 2 1 0\n1 2 x 1\n"), Options{})
	_, err := r.Next()
	require.NoError(t, err)

	_, err = r.Next()
	require.ErrorIs(t, err, ErrMalformedRecord)
	var le *LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 2, le.Line)
}

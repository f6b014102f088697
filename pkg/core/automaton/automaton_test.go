package automaton

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

func TestAutomaton_Transitions(t *testing.T) {
	a := New()
	a.AddTransition(0, 1, 7)
	a.AddTransition(1, 1, 8)
	a.AddFinalState(1)

	next, ok := a.NextState(0, 7)
	require.True(t, ok)
	assert.Equal(t, types.State(1), next)

	_, ok = a.NextState(0, 8)
	assert.False(t, ok, "no transition from 0 on label 8")

	assert.True(t, a.HasLabel(7))
	assert.True(t, a.HasLabel(8))
	assert.False(t, a.HasLabel(9))

	assert.True(t, a.IsFinalState(1))
	assert.False(t, a.IsFinalState(0))
	assert.Equal(t, 2, a.StateCount())
	assert.Equal(t, []types.StatePair{{From: 1, To: 1}}, a.StatePairsWithTransition(8))
	assert.Empty(t, a.StatePairsWithTransition(9))
}

func TestFromQuery(t *testing.T) {
	tests := []struct {
		name    string
		id      int
		labels  []types.Label
		accepts [][]types.Label
		rejects [][]types.Label
	}{
		{
			name:    "a+",
			id:      1,
			labels:  []types.Label{1},
			accepts: [][]types.Label{{1}, {1, 1, 1}},
			rejects: [][]types.Label{{}, {2}},
		},
		{
			name:    "ab*",
			id:      2,
			labels:  []types.Label{1, 2},
			accepts: [][]types.Label{{1}, {1, 2, 2}},
			rejects: [][]types.Label{{2}, {1, 1}},
		},
		{
			name:    "ab*c*",
			id:      3,
			labels:  []types.Label{1, 2, 3},
			accepts: [][]types.Label{{1}, {1, 2, 3}, {1, 3, 3}},
			rejects: [][]types.Label{{1, 3, 2}},
		},
		{
			name:    "(abc)+",
			id:      4,
			labels:  []types.Label{1, 2, 3},
			accepts: [][]types.Label{{1, 2, 3}, {1, 2, 3, 1, 2, 3}},
			rejects: [][]types.Label{{1, 2}, {1, 2, 3, 1}},
		},
		{
			name:    "ab*c",
			id:      5,
			labels:  []types.Label{1, 2, 3},
			accepts: [][]types.Label{{1, 3}, {1, 2, 2, 3}},
			rejects: [][]types.Label{{1}, {1, 3, 3}},
		},
		{
			name:    "a*b*",
			id:      6,
			labels:  []types.Label{1, 2},
			accepts: [][]types.Label{{1}, {2}, {1, 1, 2}},
			rejects: [][]types.Label{{2, 1}},
		},
		{
			name:    "abc*",
			id:      7,
			labels:  []types.Label{1, 2, 3},
			accepts: [][]types.Label{{1, 2}, {1, 2, 3, 3}},
			rejects: [][]types.Label{{1}, {1, 3}},
		},
		{
			name:    "(a|b)c*",
			id:      10,
			labels:  []types.Label{1, 2, 3},
			accepts: [][]types.Label{{1}, {2, 3}},
			rejects: [][]types.Label{{3}, {1, 2}},
		},
		{
			name:    "abc",
			id:      11,
			labels:  []types.Label{1, 2, 3},
			accepts: [][]types.Label{{1, 2, 3}},
			rejects: [][]types.Label{{1, 2}, {1, 2, 3, 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := FromQuery(tt.id, tt.labels)
			require.NoError(t, err)

			pattern, ok := Pattern(tt.id)
			require.True(t, ok)
			assert.Equal(t, tt.name, pattern)

			for _, word := range tt.accepts {
				assert.True(t, run(a, word), "expected %v accepted", word)
			}
			for _, word := range tt.rejects {
				assert.False(t, run(a, word), "expected %v rejected", word)
			}
		})
	}
}

func TestFromQuery_Errors(t *testing.T) {
	_, err := FromQuery(99, []types.Label{1})
	require.ErrorIs(t, err, ErrUnknownQuery)

	_, err = FromQuery(4, []types.Label{1, 2})
	require.ErrorIs(t, err, ErrMissingLabels)
}

func TestFirstLabel(t *testing.T) {
	a, err := FromQuery(2, []types.Label{5, 6})
	require.NoError(t, err)

	l, ok := a.FirstLabel()
	require.True(t, ok)
	assert.Equal(t, types.Label(5), l)

	_, ok = New().FirstLabel()
	assert.False(t, ok)
}

// run simulates the automaton over a label word.
func run(a *Automaton, word []types.Label) bool {
	state := a.InitialState()
	for _, l := range word {
		next, ok := a.NextState(state, l)
		if !ok {
			return false
		}
		state = next
	}
	return a.IsFinalState(state)
}

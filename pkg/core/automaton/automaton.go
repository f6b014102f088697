// Package automaton compiles a regular path query into a finite state
// automaton over edge labels.
//
// The automaton is a pure lookup structure: it is built once at startup
// (either by hand with AddTransition/AddFinalState or from one of the
// predefined query templates with FromQuery) and is never mutated while the
// stream is processed, so it can be shared freely between components.
package automaton

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

var (
	// ErrUnknownQuery is returned by FromQuery for an unsupported query id.
	ErrUnknownQuery = errors.New("unknown query id")
	// ErrMissingLabels is returned when a template needs more label bindings
	// than were supplied.
	ErrMissingLabels = errors.New("not enough labels for query")
)

// InitialState is the state every query template starts from.
const InitialState types.State = 0

// Transition is a single labelled arc of the automaton.
type Transition struct {
	From  types.State
	To    types.State
	Label types.Label
}

// Automaton is a finite state automaton over edge labels.
type Automaton struct {
	transitions map[types.State][]Transition
	byLabel     map[types.Label][]types.StatePair
	final       map[types.State]struct{}
	states      map[types.State]struct{}
}

// New returns an empty automaton whose initial state is InitialState.
func New() *Automaton {
	a := &Automaton{
		transitions: make(map[types.State][]Transition),
		byLabel:     make(map[types.Label][]types.StatePair),
		final:       make(map[types.State]struct{}),
		states:      make(map[types.State]struct{}),
	}
	a.states[InitialState] = struct{}{}
	return a
}

// AddTransition adds the arc from -label-> to.
func (a *Automaton) AddTransition(from, to types.State, label types.Label) {
	a.transitions[from] = append(a.transitions[from], Transition{From: from, To: to, Label: label})
	a.byLabel[label] = append(a.byLabel[label], types.StatePair{From: from, To: to})
	a.states[from] = struct{}{}
	a.states[to] = struct{}{}
}

// AddFinalState marks state as accepting.
func (a *Automaton) AddFinalState(state types.State) {
	a.final[state] = struct{}{}
	a.states[state] = struct{}{}
}

// InitialState returns the start state.
func (a *Automaton) InitialState() types.State { return InitialState }

// StateCount returns the number of distinct states seen so far.
func (a *Automaton) StateCount() int { return len(a.states) }

// HasLabel reports whether any transition consumes label.
func (a *Automaton) HasLabel(label types.Label) bool {
	_, ok := a.byLabel[label]
	return ok
}

// NextState returns the state reached from state by consuming label.
// The second result is false when no such transition exists.
func (a *Automaton) NextState(state types.State, label types.Label) (types.State, bool) {
	for _, t := range a.transitions[state] {
		if t.Label == label {
			return t.To, true
		}
	}
	return 0, false
}

// StatePairsWithTransition returns every (from, to) pair linked by label, in
// insertion order. The returned slice must not be modified.
func (a *Automaton) StatePairsWithTransition(label types.Label) []types.StatePair {
	return a.byLabel[label]
}

// IsFinalState reports whether state is accepting.
func (a *Automaton) IsFinalState(state types.State) bool {
	_, ok := a.final[state]
	return ok
}

// FinalStates returns the accepting states in ascending order.
func (a *Automaton) FinalStates() []types.State {
	out := make([]types.State, 0, len(a.final))
	for s := range a.final {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Transitions returns every transition, grouped by source state in
// ascending order.
func (a *Automaton) Transitions() []Transition {
	from := make([]types.State, 0, len(a.transitions))
	for s := range a.transitions {
		from = append(from, s)
	}
	slices.Sort(from)

	var out []Transition
	for _, s := range from {
		out = append(out, a.transitions[s]...)
	}
	return out
}

// template describes a predefined query: the number of labels it binds and
// how to wire them.
type template struct {
	pattern string
	labels  int
	build   func(a *Automaton, l []types.Label)
}

var templates = map[int]template{
	1: {"a+", 1, func(a *Automaton, l []types.Label) {
		a.AddFinalState(1)
		a.AddTransition(0, 1, l[0])
		a.AddTransition(1, 1, l[0])
	}},
	2: {"ab*", 2, func(a *Automaton, l []types.Label) {
		a.AddFinalState(1)
		a.AddTransition(0, 1, l[0])
		a.AddTransition(1, 1, l[1])
	}},
	3: {"ab*c*", 3, func(a *Automaton, l []types.Label) {
		a.AddFinalState(1)
		a.AddFinalState(2)
		a.AddTransition(0, 1, l[0])
		a.AddTransition(1, 1, l[1])
		a.AddTransition(1, 2, l[2])
		a.AddTransition(2, 2, l[2])
	}},
	4: {"(abc)+", 3, func(a *Automaton, l []types.Label) {
		a.AddFinalState(3)
		a.AddTransition(0, 1, l[0])
		a.AddTransition(1, 2, l[1])
		a.AddTransition(2, 3, l[2])
		a.AddTransition(3, 1, l[0])
	}},
	5: {"ab*c", 3, func(a *Automaton, l []types.Label) {
		a.AddFinalState(2)
		a.AddTransition(0, 1, l[0])
		a.AddTransition(1, 1, l[1])
		a.AddTransition(1, 2, l[2])
	}},
	6: {"a*b*", 2, func(a *Automaton, l []types.Label) {
		a.AddFinalState(1)
		a.AddFinalState(2)
		a.AddTransition(0, 1, l[0])
		a.AddTransition(1, 1, l[0])
		a.AddTransition(1, 2, l[1])
		a.AddTransition(0, 2, l[1])
		a.AddTransition(2, 2, l[1])
	}},
	7: {"abc*", 3, func(a *Automaton, l []types.Label) {
		a.AddFinalState(2)
		a.AddTransition(0, 1, l[0])
		a.AddTransition(1, 2, l[1])
		a.AddTransition(2, 2, l[2])
	}},
	10: {"(a|b)c*", 3, func(a *Automaton, l []types.Label) {
		a.AddFinalState(1)
		a.AddTransition(0, 1, l[0])
		a.AddTransition(0, 1, l[1])
		a.AddTransition(1, 1, l[2])
	}},
	11: {"abc", 3, func(a *Automaton, l []types.Label) {
		a.AddFinalState(3)
		a.AddTransition(0, 1, l[0])
		a.AddTransition(1, 2, l[1])
		a.AddTransition(2, 3, l[2])
	}},
}

// FromQuery builds the automaton of a predefined query template, binding the
// template's symbols (a, b, c) to labels in order.
func FromQuery(queryID int, labels []types.Label) (*Automaton, error) {
	tpl, ok := templates[queryID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownQuery, queryID)
	}
	if len(labels) < tpl.labels {
		return nil, fmt.Errorf("%w: query %d (%s) needs %d, got %d",
			ErrMissingLabels, queryID, tpl.pattern, tpl.labels, len(labels))
	}
	a := New()
	tpl.build(a, labels)
	return a, nil
}

// Pattern returns the textual pattern of a predefined query template.
func Pattern(queryID int) (string, bool) {
	tpl, ok := templates[queryID]
	return tpl.pattern, ok
}

// FirstLabel returns the label consumed by the first transition out of the
// initial state, used by the cost model to count initial edges.
func (a *Automaton) FirstLabel() (types.Label, bool) {
	ts := a.transitions[InitialState]
	if len(ts) == 0 {
		return 0, false
	}
	return ts[0].Label, true
}

// Package types holds the scalar and record types shared by every stage of
// the streaming RPQ pipeline.
package types

import "fmt"

// Vertex identifies a graph vertex as it appears in the input stream.
type Vertex = int64

// Label is an edge label. Query patterns are expressed over labels.
type Label = int64

// State is an automaton state. State 0 is always the initial state.
type State = int64

// Arrival is a single record of the input stream after time normalisation.
type Arrival struct {
	Source Vertex
	Dest   Vertex
	Label  Label
	Time   int64
}

func (a Arrival) String() string {
	return fmt.Sprintf("(%d -[%d]-> %d @%d)", a.Source, a.Label, a.Dest, a.Time)
}

// StatePair is a (from, to) pair of automaton states linked by a transition.
type StatePair struct {
	From State
	To   State
}

// Match is a reported query answer: Destination is reachable from Source by a
// path whose label sequence is accepted by the query automaton.
type Match struct {
	Source      Vertex `json:"source"`
	Destination Vertex `json:"destination"`
	Timestamp   int64  `json:"timestamp"`
}

// VertexPair holds the endpoints of an edge removed from the graph; eviction
// hands these to the forest as expiry candidates.
type VertexPair struct {
	Source Vertex
	Dest   Vertex
}

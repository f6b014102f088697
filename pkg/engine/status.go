package engine

// Run states reported by Status.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StatePaused   = "paused"
	StateFinished = "finished"
	StateFailed   = "failed"
)

// Status is a point-in-time view of a run, safe to read from any goroutine.
type Status struct {
	RunID string `json:"run_id"`
	State string `json:"state"`
	Mode  string `json:"mode"`
	Error string `json:"error,omitempty"`

	Processed        int64 `json:"processed"`
	Shed             int64 `json:"shed"`
	Filtered         int64 `json:"filtered"`
	OutOfOrder       int64 `json:"out_of_order"`
	SavedByRetention int64 `json:"saved_by_retention"`
	DenseEdges       int64 `json:"dense_edges"`
	LastTime         int64 `json:"last_time"`

	Windows     int   `json:"windows"`
	LiveWindows int   `json:"live_windows"`
	WindowSize  int64 `json:"window_size"`
	GraphEdges  int   `json:"graph_edges"`
	ForestNodes int   `json:"forest_nodes"`
	ForestTrees int   `json:"forest_trees"`
	Results     int   `json:"results"`
	Matched     int64 `json:"matched"`

	NormalizedCost  float64 `json:"normalized_cost"`
	ShedProbability float64 `json:"shed_probability"`
}

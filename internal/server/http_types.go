package server

import "github.com/sanonone/streamrpq/pkg/engine"

// StepResponse is returned by POST /step once the released edge has been
// processed.
type StepResponse struct {
	Processed int64         `json:"processed"`
	Status    engine.Status `json:"status"`
}

// GateResponse is returned by POST /pause and POST /continue.
type GateResponse struct {
	Paused bool          `json:"paused"`
	Status engine.Status `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

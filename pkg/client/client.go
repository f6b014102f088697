// Package client talks to the debug server of a running pipeline: it reads
// the run status and drives the step gate.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sanonone/streamrpq/pkg/engine"
)

// APIError represents an error returned by the debug server (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// StepResult is the answer to Step.
type StepResult struct {
	Processed int64         `json:"processed"`
	Status    engine.Status `json:"status"`
}

type gateResult struct {
	Paused bool          `json:"paused"`
	Status engine.Status `json:"status"`
}

// Client is the Go client of the debug server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the server at host:port. apiKey may be empty.
func New(host string, port int, apiKey string) *Client {
	return NewWithURL(fmt.Sprintf("http://%s:%d", host, port), apiKey)
}

// NewWithURL creates a client for the server at baseURL.
func NewWithURL(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		// Step waits for the pipeline, so allow more than the server's own
		// step timeout.
		httpClient: &http.Client{Timeout: 35 * time.Second},
	}
}

// Status returns the current run status.
func (c *Client) Status() (engine.Status, error) {
	var st engine.Status
	err := c.jsonRequest(http.MethodGet, "/status", nil, &st)
	return st, err
}

// Step releases one edge and returns once it has been processed.
func (c *Client) Step() (StepResult, error) {
	var res StepResult
	err := c.jsonRequest(http.MethodPost, "/step", nil, &res)
	return res, err
}

// Pause holds the pipeline before its next edge.
func (c *Client) Pause() (engine.Status, error) {
	var res gateResult
	err := c.jsonRequest(http.MethodPost, "/pause", nil, &res)
	return res.Status, err
}

// Continue releases the pipeline.
func (c *Client) Continue() (engine.Status, error) {
	var res gateResult
	err := c.jsonRequest(http.MethodPost, "/continue", nil, &res)
	return res.Status, err
}

// Healthz reports whether the server answers.
func (c *Client) Healthz() error {
	return c.jsonRequest(http.MethodGet, "/healthz", nil, nil)
}

// jsonRequest executes a request and decodes the JSON answer into out when
// out is not nil.
func (c *Client) jsonRequest(method, endpoint string, payload, out any) error {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Package audit mirrors decisions, assertions and learning events into the
// external provenance graph. Writes go through a buffered write-behind queue:
// the graph is an audit surface, never a dependency of settlement.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	NodeDecision  = "Decision"
	NodeAssertion = "Assertion"

	EdgeUsedIn      = "USED_IN"
	EdgeEvaluatedAs = "EVALUATED_AS"
	EdgeLearnedFrom = "LEARNED_FROM"
)

// Node is one vertex upsert in the provenance graph.
type Node struct {
	Kind       string         `json:"kind"`
	Key        string         `json:"key"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Edge links two nodes by key.
type Edge struct {
	Kind       string         `json:"kind"`
	FromKey    string         `json:"from_key"`
	ToKey      string         `json:"to_key"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Event is one atomic batch of graph writes.
type Event struct {
	Nodes []Node `json:"nodes,omitempty"`
	Edges []Edge `json:"edges,omitempty"`
}

// Client posts provenance events to the graph store's ingest endpoint.
type Client struct {
	BaseURL string
	Timeout time.Duration

	HTTP *http.Client
}

func (c *Client) Post(ctx context.Context, ev Event) error {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return errors.New("audit base url is empty")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/graph/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("audit ingest http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

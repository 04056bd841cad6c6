// Package http implements ports.Gateway against the remote graph API.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/weave/pkg/domain"
)

// Gateway talks JSON over HTTP to the graph service.
type Gateway struct {
	baseURL string
	client  *http.Client
	apiKey  string
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithClient injects a custom http.Client (timeouts, transports, test
// servers).
func WithClient(client *http.Client) Option {
	return func(g *Gateway) { g.client = client }
}

// WithAPIKey sets a bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(g *Gateway) { g.apiKey = key }
}

// NewGateway creates a gateway rooted at baseURL (e.g. "https://api.example.com").
func NewGateway(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FetchGraph returns the authoritative document for one graph.
func (g *Gateway) FetchGraph(ctx context.Context, name string) (*domain.Document, error) {
	var doc domain.Document
	if err := g.do(ctx, http.MethodGet, "/api/graphs/"+url.PathEscape(name), nil, &doc); err != nil {
		return nil, fmt.Errorf("failed to fetch graph %q: %w", name, err)
	}
	return &doc, nil
}

// SaveGraph submits the full document and returns the accepted baseline.
func (g *Gateway) SaveGraph(ctx context.Context, doc *domain.Document) (*domain.Baseline, error) {
	var baseline domain.Baseline
	if err := g.do(ctx, http.MethodPut, "/api/graphs/"+url.PathEscape(doc.Name), doc, &baseline); err != nil {
		return nil, fmt.Errorf("failed to save graph %q: %w", doc.Name, err)
	}
	return &baseline, nil
}

// FetchTemplates returns the node catalog.
func (g *Gateway) FetchTemplates(ctx context.Context) ([]domain.Template, error) {
	var templates []domain.Template
	if err := g.do(ctx, http.MethodGet, "/api/templates", nil, &templates); err != nil {
		return nil, fmt.Errorf("failed to fetch template catalog: %w", err)
	}
	return templates, nil
}

// FetchNodeStatus returns the current status snapshot for one node.
func (g *Gateway) FetchNodeStatus(ctx context.Context, nodeID string) (*domain.StatusUpdate, error) {
	var update domain.StatusUpdate
	if err := g.do(ctx, http.MethodGet, "/api/nodes/"+url.PathEscape(nodeID)+"/status", nil, &update); err != nil {
		return nil, fmt.Errorf("failed to fetch status for node %q: %w", nodeID, err)
	}
	return &update, nil
}

// FetchNodeState returns the server-owned state blob for one node.
func (g *Gateway) FetchNodeState(ctx context.Context, nodeID string) (map[string]any, error) {
	var state map[string]any
	if err := g.do(ctx, http.MethodGet, "/api/nodes/"+url.PathEscape(nodeID)+"/state", nil, &state); err != nil {
		return nil, fmt.Errorf("failed to fetch state for node %q: %w", nodeID, err)
	}
	return state, nil
}

// PutNodeState replaces the server-owned state blob for one node.
func (g *Gateway) PutNodeState(ctx context.Context, nodeID string, state map[string]any) error {
	if err := g.do(ctx, http.MethodPut, "/api/nodes/"+url.PathEscape(nodeID)+"/state", state, nil); err != nil {
		return fmt.Errorf("failed to put state for node %q: %w", nodeID, err)
	}
	return nil
}

// Provision triggers the provision action.
func (g *Gateway) Provision(ctx context.Context, nodeID string) error {
	if err := g.do(ctx, http.MethodPost, "/api/nodes/"+url.PathEscape(nodeID)+"/provision", nil, nil); err != nil {
		return fmt.Errorf("failed to provision node %q: %w", nodeID, err)
	}
	return nil
}

// Deprovision triggers the deprovision action.
func (g *Gateway) Deprovision(ctx context.Context, nodeID string) error {
	if err := g.do(ctx, http.MethodPost, "/api/nodes/"+url.PathEscape(nodeID)+"/deprovision", nil, nil); err != nil {
		return fmt.Errorf("failed to deprovision node %q: %w", nodeID, err)
	}
	return nil
}

// do issues one JSON request and decodes the response into out (if non-nil).
func (g *Gateway) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiError extracts a human-readable message from an error response body.
// The service answers {"error": "..."} on failures; anything else falls
// back to the raw body.
func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, payload.Error)
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = "no error details"
	}
	return fmt.Errorf("server returned %s: %s", resp.Status, msg)
}

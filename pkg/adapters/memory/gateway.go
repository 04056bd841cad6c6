// Package memory provides an in-memory ports.Gateway. Useful for demos and
// as the reference implementation for the gateway contract suite.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aretw0/weave/pkg/domain"
)

// Gateway implements ports.Gateway against process-local maps.
// Safe for concurrent use.
type Gateway struct {
	mu        sync.RWMutex
	docs      map[string]*domain.Document
	templates []domain.Template
	statuses  map[string]domain.StatusUpdate
	states    map[string]map[string]any
}

// NewGateway creates an empty gateway.
func NewGateway() *Gateway {
	return &Gateway{
		docs:     make(map[string]*domain.Document),
		statuses: make(map[string]domain.StatusUpdate),
		states:   make(map[string]map[string]any),
	}
}

// SeedGraph installs a graph document.
func (g *Gateway) SeedGraph(doc *domain.Document) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.docs[doc.Name] = doc.Clone()
}

// SeedTemplates installs the template catalog.
func (g *Gateway) SeedTemplates(templates []domain.Template) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.templates = append([]domain.Template(nil), templates...)
}

// SeedStatus installs the status answer for one node.
func (g *Gateway) SeedStatus(nodeID string, update domain.StatusUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[nodeID] = update
}

// FetchGraph returns a copy of the stored document.
func (g *Gateway) FetchGraph(ctx context.Context, name string) (*domain.Document, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	doc, ok := g.docs[name]
	if !ok {
		return nil, fmt.Errorf("graph %q not found", name)
	}
	return doc.Clone(), nil
}

// SaveGraph accepts the document unconditionally and advances the version.
func (g *Gateway) SaveGraph(ctx context.Context, doc *domain.Document) (*domain.Baseline, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	accepted := doc.Clone()
	accepted.Version = nextVersion(doc.Version)
	g.docs[accepted.Name] = accepted
	return &domain.Baseline{
		Name:    accepted.Name,
		Version: accepted.Version,
		Edges:   append([]domain.Edge(nil), accepted.Edges...),
	}, nil
}

// FetchTemplates returns the catalog.
func (g *Gateway) FetchTemplates(ctx context.Context) ([]domain.Template, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.Template(nil), g.templates...), nil
}

// FetchNodeStatus returns the seeded status, or an empty update.
func (g *Gateway) FetchNodeStatus(ctx context.Context, nodeID string) (*domain.StatusUpdate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	update, ok := g.statuses[nodeID]
	if !ok {
		return &domain.StatusUpdate{}, nil
	}
	return &update, nil
}

// FetchNodeState returns the stored state blob.
func (g *Gateway) FetchNodeState(ctx context.Context, nodeID string) (map[string]any, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]any, len(g.states[nodeID]))
	for k, v := range g.states[nodeID] {
		out[k] = v
	}
	return out, nil
}

// PutNodeState replaces the stored state blob.
func (g *Gateway) PutNodeState(ctx context.Context, nodeID string, state map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	copied := make(map[string]any, len(state))
	for k, v := range state {
		copied[k] = v
	}
	g.states[nodeID] = copied
	return nil
}

// Provision flips the node's stored status to provisioning.
func (g *Gateway) Provision(ctx context.Context, nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[nodeID] = domain.StatusUpdate{
		ProvisionStatus: &domain.ProvisionStatus{State: string(domain.StatusProvisioning)},
	}
	return nil
}

// Deprovision flips the node's stored status to deprovisioning.
func (g *Gateway) Deprovision(ctx context.Context, nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[nodeID] = domain.StatusUpdate{
		ProvisionStatus: &domain.ProvisionStatus{State: string(domain.StatusDeprovisioning)},
	}
	return nil
}

func nextVersion(v string) string {
	n, err := strconv.Atoi(v)
	if err != nil {
		return v + "+1"
	}
	return strconv.Itoa(n + 1)
}

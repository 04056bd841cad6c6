package testutils

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/aretw0/weave/pkg/domain"
)

// ScriptedGateway is an in-memory ports.Gateway with failure injection and
// call recording, used to drive the scheduler and channel tests.
type ScriptedGateway struct {
	mu sync.Mutex

	Doc       *domain.Document
	Templates []domain.Template
	Statuses  map[string]domain.StatusUpdate
	States    map[string]map[string]any

	failGraphFetch    bool
	failTemplateFetch bool
	failSaves         int
	failStatusFor     map[string]bool
	failLifecycle     bool

	saveLog     []*domain.Document
	statusCalls map[string]int

	// SaveGate, when non-nil, blocks SaveGraph until released. Lets tests
	// hold a save in flight.
	SaveGate chan struct{}
	// SaveStarted receives one signal per SaveGraph entry.
	SaveStarted chan struct{}
}

// NewScriptedGateway seeds the gateway with a document and catalog.
func NewScriptedGateway(doc *domain.Document, templates []domain.Template) *ScriptedGateway {
	return &ScriptedGateway{
		Doc:           doc.Clone(),
		Templates:     templates,
		Statuses:      make(map[string]domain.StatusUpdate),
		States:        make(map[string]map[string]any),
		failStatusFor: make(map[string]bool),
		statusCalls:   make(map[string]int),
	}
}

// FailGraphFetch makes the next FetchGraph calls fail.
func (g *ScriptedGateway) FailGraphFetch(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failGraphFetch = fail
}

// FailTemplateFetch makes the next FetchTemplates calls fail.
func (g *ScriptedGateway) FailTemplateFetch(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failTemplateFetch = fail
}

// FailNextSaves makes the next n SaveGraph calls fail.
func (g *ScriptedGateway) FailNextSaves(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failSaves = n
}

// FailStatusFor makes FetchNodeStatus fail for one node id.
func (g *ScriptedGateway) FailStatusFor(nodeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failStatusFor[nodeID] = true
}

// FailLifecycle makes Provision/Deprovision fail.
func (g *ScriptedGateway) FailLifecycle(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failLifecycle = fail
}

// SetStatus seeds the poll/hydration answer for a node.
func (g *ScriptedGateway) SetStatus(nodeID string, update domain.StatusUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Statuses[nodeID] = update
}

// SaveCount returns how many SaveGraph calls completed recording.
func (g *ScriptedGateway) SaveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.saveLog)
}

// LastSave returns the most recent save payload, or nil.
func (g *ScriptedGateway) LastSave() *domain.Document {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.saveLog) == 0 {
		return nil
	}
	return g.saveLog[len(g.saveLog)-1].Clone()
}

// StatusCalls returns how many times a node's status was fetched.
func (g *ScriptedGateway) StatusCalls(nodeID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls[nodeID]
}

func (g *ScriptedGateway) FetchGraph(ctx context.Context, name string) (*domain.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failGraphFetch {
		return nil, errors.New("graph fetch refused")
	}
	if g.Doc == nil || g.Doc.Name != name {
		return nil, errors.New("graph not found")
	}
	return g.Doc.Clone(), nil
}

func (g *ScriptedGateway) FetchTemplates(ctx context.Context) ([]domain.Template, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failTemplateFetch {
		return nil, errors.New("template fetch refused")
	}
	return append([]domain.Template(nil), g.Templates...), nil
}

func (g *ScriptedGateway) SaveGraph(ctx context.Context, doc *domain.Document) (*domain.Baseline, error) {
	g.mu.Lock()
	started := g.SaveStarted
	gate := g.SaveGate
	g.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSaves > 0 {
		g.failSaves--
		return nil, errors.New("version conflict: graph changed on the server")
	}
	g.saveLog = append(g.saveLog, doc.Clone())
	g.Doc = doc.Clone()
	g.Doc.Version = bumpVersion(doc.Version)
	return &domain.Baseline{
		Name:    g.Doc.Name,
		Version: g.Doc.Version,
		Edges:   append([]domain.Edge(nil), g.Doc.Edges...),
	}, nil
}

func (g *ScriptedGateway) FetchNodeStatus(ctx context.Context, nodeID string) (*domain.StatusUpdate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls[nodeID]++
	if g.failStatusFor[nodeID] {
		return nil, errors.New("status endpoint unavailable")
	}
	update, ok := g.Statuses[nodeID]
	if !ok {
		return &domain.StatusUpdate{}, nil
	}
	return &update, nil
}

func (g *ScriptedGateway) FetchNodeState(ctx context.Context, nodeID string) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.States[nodeID], nil
}

func (g *ScriptedGateway) PutNodeState(ctx context.Context, nodeID string, state map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.States[nodeID] = state
	return nil
}

func (g *ScriptedGateway) Provision(ctx context.Context, nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failLifecycle {
		return errors.New("provision rejected")
	}
	return nil
}

func (g *ScriptedGateway) Deprovision(ctx context.Context, nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failLifecycle {
		return errors.New("deprovision rejected")
	}
	return nil
}

func bumpVersion(v string) string {
	n, err := strconv.Atoi(v)
	if err != nil {
		return v + "+1"
	}
	return strconv.Itoa(n + 1)
}

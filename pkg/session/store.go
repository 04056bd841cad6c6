package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/clock"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/mapper"
	"github.com/aretw0/weave/pkg/ports"
)

// DefaultDebounce is the quiet window the scheduler waits for after the
// first persistence-worthy mutation of a burst.
const DefaultDebounce = 800 * time.Millisecond

// Store is the Graph Session Store. It exclusively owns the node/metadata
// model of one session; there is no cross-session sharing.
type Store struct {
	gateway ports.Gateway
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	clock   clock.Clock

	debounce time.Duration

	mu        sync.Mutex
	hydrated  bool
	closed    bool
	name      string
	baseline  domain.Baseline
	nodes     []domain.NodeConfig
	metadata  map[string]domain.NodeMetadata
	edges     []domain.Edge
	templates map[string]domain.Template

	// Save scheduler. Three states: idle, debouncing (timer armed),
	// in-flight (+pending). dirty survives failures so edits are never lost.
	dirty    bool
	pending  bool
	inFlight bool
	timer    clock.Timer

	saveState domain.SaveState
	saveErr   error

	subs    map[int]func(Snapshot)
	nextSub int
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a structured logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Store) { s.hooks = hooks }
}

// WithClock injects a clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithDebounce overrides the save debounce window.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// NewStore creates a Store bound to a persistence gateway. The store is
// inert until Load succeeds.
func NewStore(gateway ports.Gateway, opts ...Option) *Store {
	s := &Store{
		gateway:   gateway,
		logger:    logging.NewNop(),
		clock:     clock.System(),
		debounce:  DefaultDebounce,
		metadata:  make(map[string]domain.NodeMetadata),
		templates: make(map[string]domain.Template),
		saveState: domain.SaveIdle,
		subs:      make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the graph document and the template catalog concurrently,
// hydrates per-node statuses (best effort) and installs the model in one
// state transition. A graph or template fetch failure aborts the load and
// leaves the session un-hydrated.
func (s *Store) Load(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	s.mu.Unlock()

	var (
		wg        sync.WaitGroup
		doc       *domain.Document
		templates []domain.Template
		docErr    error
		tplErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		doc, docErr = s.gateway.FetchGraph(ctx, name)
	}()
	go func() {
		defer wg.Done()
		templates, tplErr = s.gateway.FetchTemplates(ctx)
	}()
	wg.Wait()

	if docErr != nil {
		return fmt.Errorf("failed to load graph %q: %w", name, docErr)
	}
	if tplErr != nil {
		return fmt.Errorf("failed to load template catalog: %w", tplErr)
	}

	nodes, metadata := mapper.BuildSession(doc, templates)
	statuses := s.hydrateStatuses(ctx, doc)
	for i := range nodes {
		if update, ok := statuses[nodes[i].ID]; ok {
			applyStatusUpdate(&nodes[i], update)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	s.name = doc.Name
	s.baseline = domain.Baseline{
		Name:    doc.Name,
		Version: doc.Version,
		Edges:   append([]domain.Edge(nil), doc.Edges...),
	}
	s.nodes = nodes
	s.metadata = metadata
	s.edges = append([]domain.Edge(nil), doc.Edges...)
	s.templates = make(map[string]domain.Template, len(templates))
	for _, tpl := range templates {
		s.templates[tpl.Name] = tpl
	}
	s.hydrated = true
	s.saveState = domain.SaveIdle
	s.saveErr = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	s.logger.Info("session hydrated", "graph", doc.Name, "version", doc.Version, "nodes", len(nodes))
	return nil
}

// hydrateStatuses fetches every node's status concurrently. Individual
// failures are logged and skipped: a half-provisioned board is still
// usable, an aborted load is not.
func (s *Store) hydrateStatuses(ctx context.Context, doc *domain.Document) map[string]domain.StatusUpdate {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	statuses := make(map[string]domain.StatusUpdate, len(doc.Nodes))
	for _, pn := range doc.Nodes {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			update, err := s.gateway.FetchNodeStatus(ctx, id)
			if err != nil {
				s.logger.Warn("skipping status hydration for node", "node_id", id, "err", err)
				return
			}
			if update == nil {
				return
			}
			mu.Lock()
			statuses[id] = *update
			mu.Unlock()
		}(pn.ID)
	}
	wg.Wait()
	return statuses
}

// Close tears the session down. In-flight requests may finish but their
// results are discarded; the debounce timer is cleared.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Hydrated reports whether a load has completed successfully.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// Name returns the graph name (live value, including unsaved renames).
func (s *Store) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Version returns the baseline version accepted by the server.
func (s *Store) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline.Version
}

// Node returns a copy of one node.
func (s *Store) Node(id string) (domain.NodeConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.nodes[idx].Clone(), true
	}
	return domain.NodeConfig{}, false
}

// Nodes returns a copy of the live node list.
func (s *Store) Nodes() []domain.NodeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.NodeConfig, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Clone()
	}
	return out
}

// Edges returns a copy of the live edge list.
func (s *Store) Edges() []domain.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Edge(nil), s.edges...)
}

// SaveStatus returns the scheduler's surfaced state and the last save error.
func (s *Store) SaveStatus() (domain.SaveState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveState, s.saveErr
}

func (s *Store) indexLocked(id string) int {
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) templateLocked(name string) *domain.Template {
	if tpl, ok := s.templates[name]; ok {
		return &tpl
	}
	return nil
}

package session

import (
	"context"
	"fmt"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/mapper"
	"github.com/google/uuid"
)

// NodeUpdate is a partial update for one node. Nil fields are untouched;
// Config and State are merged key-wise into the existing blobs.
//
// Title, Config, State and Position changes are persistence-worthy and
// schedule a save. Status and Runtime changes are transient: they originate
// from server pushes, and re-saving them would feed the server its own
// updates back.
type NodeUpdate struct {
	Title    *string
	Config   map[string]any
	State    map[string]any
	Position *domain.Position
	Status   *domain.Status
	Runtime  *domain.Runtime
}

func (u NodeUpdate) persistenceWorthy() bool {
	return u.Title != nil || u.Config != nil || u.State != nil || u.Position != nil
}

// UpdateNode merges a partial update into the live node and its shadow
// metadata. The model is updated in one atomic step; persistence, if due,
// happens asynchronously.
func (s *Store) UpdateNode(id string, update NodeUpdate) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("updating node %q: %w", id, domain.ErrNodeNotFound)
	}

	node := &s.nodes[idx]
	meta, hasMeta := s.metadata[id]
	if !hasMeta && update.persistenceWorthy() {
		s.mu.Unlock()
		return fmt.Errorf("updating node %q: %w", id, domain.ErrMissingMetadata)
	}

	if update.Title != nil {
		node.Title = *update.Title
		node.Config = setKey(node.Config, "title", *update.Title)
		meta.Config = setKey(meta.Config, "title", *update.Title)
	}
	if update.Config != nil {
		node.Config = mergeInto(node.Config, update.Config)
		meta.Config = mergeInto(meta.Config, update.Config)
		node.Title = mapper.DeriveTitle(node.Config, s.templateLocked(node.Template))
	}
	if update.State != nil {
		node.State = mergeInto(node.State, update.State)
		meta.State = mergeInto(meta.State, update.State)
	}
	if update.Position != nil {
		node.Position = *update.Position
		meta.Position = *update.Position
	}
	if update.Status != nil {
		node.Status = *update.Status
	}
	if update.Runtime != nil {
		rt := *update.Runtime
		if rt.ProvisionStatus != nil {
			ps := *rt.ProvisionStatus
			rt.ProvisionStatus = &ps
		}
		node.Runtime = rt
	}
	if hasMeta {
		s.metadata[id] = meta
	}

	if update.persistenceWorthy() {
		s.scheduleSaveLocked()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return nil
}

// SetEdges atomically replaces the edge list with a snapshot copy and
// schedules a save. All structural edge changes go through here.
func (s *Store) SetEdges(next []domain.Edge) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	s.edges = append([]domain.Edge(nil), next...)
	s.scheduleSaveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return nil
}

// RemoveNodes removes the given nodes and every edge touching them in the
// same state transition: no observer ever sees a dangling edge.
func (s *Store) RemoveNodes(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	nodes := s.nodes[:0]
	for _, n := range s.nodes {
		if _, gone := drop[n.ID]; gone {
			delete(s.metadata, n.ID)
			continue
		}
		nodes = append(nodes, n)
	}
	s.nodes = nodes

	edges := s.edges[:0]
	for _, e := range s.edges {
		if _, gone := drop[e.Source]; gone {
			continue
		}
		if _, gone := drop[e.Target]; gone {
			continue
		}
		edges = append(edges, e)
	}
	s.edges = edges

	s.scheduleSaveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return nil
}

// AddNode materializes a new node from a catalog template at the given
// canvas position and schedules a save. Returns a copy of the new node.
func (s *Store) AddNode(template string, pos domain.Position) (domain.NodeConfig, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.NodeConfig{}, domain.ErrClosed
	}
	if !s.hydrated {
		s.mu.Unlock()
		return domain.NodeConfig{}, domain.ErrNotHydrated
	}
	tpl, ok := s.templates[template]
	if !ok {
		s.mu.Unlock()
		return domain.NodeConfig{}, fmt.Errorf("adding node from template %q: %w", template, domain.ErrTemplateNotFound)
	}

	node, meta := mapper.NewNode(tpl, uuid.NewString(), pos)
	s.nodes = append(s.nodes, node)
	s.metadata[node.ID] = meta

	s.scheduleSaveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return node.Clone(), nil
}

// Rename changes the graph name. The name travels with the save payload,
// so renaming is persistence-worthy.
func (s *Store) Rename(name string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	if !s.hydrated {
		s.mu.Unlock()
		return domain.ErrNotHydrated
	}
	s.name = name
	s.scheduleSaveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return nil
}

// ApplyNodeStatus applies a server-originated status update to exactly one
// node. Never schedules a save: this is the integration point for the live
// status channel.
func (s *Store) ApplyNodeStatus(id string, update domain.StatusUpdate) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("applying status to node %q: %w", id, domain.ErrNodeNotFound)
	}
	applyStatusUpdate(&s.nodes[idx], update)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return nil
}

// ApplyNodeState replaces a node's server-owned state blob. Never schedules
// a save.
func (s *Store) ApplyNodeState(id string, state map[string]any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("applying state to node %q: %w", id, domain.ErrNodeNotFound)
	}
	s.nodes[idx].State = mergeInto(nil, state)
	if meta, ok := s.metadata[id]; ok {
		meta.State = mergeInto(nil, state)
		s.metadata[id] = meta
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return nil
}

// Provision triggers the provision action with an optimistic status
// transition. On failure the exact pre-call status and runtime snapshot is
// restored.
func (s *Store) Provision(ctx context.Context, id string) error {
	return s.lifecycle(ctx, id, domain.StatusProvisioning,
		func(c domain.Capabilities) bool { return c.Provision },
		s.gateway.Provision)
}

// Deprovision triggers the deprovision action, with the same optimistic
// transition and rollback contract as Provision.
func (s *Store) Deprovision(ctx context.Context, id string) error {
	return s.lifecycle(ctx, id, domain.StatusDeprovisioning,
		func(c domain.Capabilities) bool { return c.Deprovision },
		s.gateway.Deprovision)
}

func (s *Store) lifecycle(ctx context.Context, id string, optimistic domain.Status, allowed func(domain.Capabilities) bool, action func(context.Context, string) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrClosed
	}
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("node %q: %w", id, domain.ErrNodeNotFound)
	}
	node := &s.nodes[idx]
	if !allowed(node.Capabilities) {
		s.mu.Unlock()
		return fmt.Errorf("node %q: %w", id, domain.ErrActionNotAllowed)
	}

	prevStatus := node.Status
	prevRuntime := node.Runtime
	if prevRuntime.ProvisionStatus != nil {
		ps := *prevRuntime.ProvisionStatus
		prevRuntime.ProvisionStatus = &ps
	}
	node.Status = optimistic
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)

	if err := action(ctx, id); err != nil {
		s.mu.Lock()
		if !s.closed {
			if idx := s.indexLocked(id); idx >= 0 {
				s.nodes[idx].Status = prevStatus
				s.nodes[idx].Runtime = prevRuntime
			}
			snap = s.snapshotLocked()
			s.mu.Unlock()
			s.publish(snap)
		} else {
			s.mu.Unlock()
		}
		return fmt.Errorf("lifecycle action on node %q failed: %w", id, err)
	}
	return nil
}

func applyStatusUpdate(n *domain.NodeConfig, u domain.StatusUpdate) {
	if u.ProvisionStatus != nil {
		ps := *u.ProvisionStatus
		n.Runtime.ProvisionStatus = &ps
		n.Status = domain.ParseStatus(ps.State)
	}
	if u.IsPaused != nil {
		n.Runtime.IsPaused = *u.IsPaused
	}
}

// mergeInto merges src into dst key-wise, copying dst first so snapshots
// never alias live maps.
func mergeInto(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

func setKey(m map[string]any, key string, value any) map[string]any {
	return mergeInto(m, map[string]any{key: value})
}

package session

import "github.com/aretw0/weave/pkg/domain"

// Snapshot is an immutable view of the session handed to subscribers.
// Nothing in it aliases store-owned memory.
type Snapshot struct {
	Name      string
	Version   string
	Hydrated  bool
	Nodes     []domain.NodeConfig
	Edges     []domain.Edge
	SaveState domain.SaveState
	SaveErr   error
}

// Node finds a node in the snapshot by id.
func (s Snapshot) Node(id string) (domain.NodeConfig, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return domain.NodeConfig{}, false
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned func removes the subscription. Callbacks run synchronously
// after the transition commits and must not call back into the store.
func (s *Store) Subscribe(fn func(Snapshot)) (off func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current state of the session.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	nodes := make([]domain.NodeConfig, len(s.nodes))
	for i, n := range s.nodes {
		nodes[i] = n.Clone()
	}
	return Snapshot{
		Name:      s.name,
		Version:   s.baseline.Version,
		Hydrated:  s.hydrated,
		Nodes:     nodes,
		Edges:     append([]domain.Edge(nil), s.edges...),
		SaveState: s.saveState,
		SaveErr:   s.saveErr,
	}
}

func (s *Store) publish(snap Snapshot) {
	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

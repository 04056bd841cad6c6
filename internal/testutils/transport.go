package testutils

import (
	"context"
	"sync"

	"github.com/aretw0/weave/pkg/domain"
)

// FakeTransport implements ports.Transport with manual event firing and
// full call recording.
type FakeTransport struct {
	mu sync.Mutex

	connected  bool
	ConnectErr error

	statusHandlers map[string]map[int]func(domain.StatusUpdate)
	stateHandlers  map[string]map[int]func(map[string]any)
	onConnected    map[int]func()
	onReconnected  map[int]func()
	onDisconnected map[int]func()
	nextID         int

	// RoomSubscriptions records every SubscribeNodes batch.
	RoomSubscriptions [][]string
	roomActive        int
}

// NewFakeTransport returns a disconnected fake transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		statusHandlers: make(map[string]map[int]func(domain.StatusUpdate)),
		stateHandlers:  make(map[string]map[int]func(map[string]any)),
		onConnected:    make(map[int]func()),
		onReconnected:  make(map[int]func()),
		onDisconnected: make(map[int]func()),
	}
}

func (t *FakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	err := t.ConnectErr
	if err == nil {
		t.connected = true
	}
	t.mu.Unlock()
	return err
}

func (t *FakeTransport) SubscribeNodes(ids []string) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	batch := append([]string(nil), ids...)
	t.RoomSubscriptions = append(t.RoomSubscriptions, batch)
	t.roomActive++
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.roomActive--
	}, nil
}

// ActiveRooms reports how many room subscriptions are currently held.
func (t *FakeTransport) ActiveRooms() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roomActive
}

// StatusHandlerCount reports how many status callbacks are registered for
// one node.
func (t *FakeTransport) StatusHandlerCount(nodeID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.statusHandlers[nodeID])
}

func (t *FakeTransport) OnNodeStatus(nodeID string, fn func(domain.StatusUpdate)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	if t.statusHandlers[nodeID] == nil {
		t.statusHandlers[nodeID] = make(map[int]func(domain.StatusUpdate))
	}
	t.statusHandlers[nodeID][id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.statusHandlers[nodeID], id)
	}
}

func (t *FakeTransport) OnNodeState(nodeID string, fn func(map[string]any)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	if t.stateHandlers[nodeID] == nil {
		t.stateHandlers[nodeID] = make(map[int]func(map[string]any))
	}
	t.stateHandlers[nodeID][id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.stateHandlers[nodeID], id)
	}
}

func (t *FakeTransport) OnConnected(fn func()) func() {
	return t.register(t.onConnected, fn)
}

func (t *FakeTransport) OnReconnected(fn func()) func() {
	return t.register(t.onReconnected, fn)
}

func (t *FakeTransport) OnDisconnected(fn func()) func() {
	return t.register(t.onDisconnected, fn)
}

func (t *FakeTransport) register(m map[int]func(), fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	m[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(m, id)
	}
}

func (t *FakeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *FakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// PushStatus fires a status event for one node.
func (t *FakeTransport) PushStatus(nodeID string, update domain.StatusUpdate) {
	t.mu.Lock()
	fns := make([]func(domain.StatusUpdate), 0, len(t.statusHandlers[nodeID]))
	for _, fn := range t.statusHandlers[nodeID] {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(update)
	}
}

// PushState fires a state event for one node.
func (t *FakeTransport) PushState(nodeID string, state map[string]any) {
	t.mu.Lock()
	fns := make([]func(map[string]any), 0, len(t.stateHandlers[nodeID]))
	for _, fn := range t.stateHandlers[nodeID] {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

// FireDisconnected simulates a transport drop.
func (t *FakeTransport) FireDisconnected() {
	t.mu.Lock()
	t.connected = false
	fns := snapshotFuncs(t.onDisconnected)
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// FireReconnected simulates a recovered connection.
func (t *FakeTransport) FireReconnected() {
	t.mu.Lock()
	t.connected = true
	fns := snapshotFuncs(t.onReconnected)
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// FireConnected simulates the first successful connection.
func (t *FakeTransport) FireConnected() {
	t.mu.Lock()
	t.connected = true
	fns := snapshotFuncs(t.onConnected)
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func snapshotFuncs(m map[int]func()) []func() {
	fns := make([]func(), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	return fns
}

// Package socketio implements ports.Transport over a socket.io connection.
//
// The server pushes "node:status" and "node:state" events carrying the node
// id inside the payload; the adapter keeps its own per-node handler
// registries and fans events out from a single listener per event name, so
// removing one callback never touches the underlying socket.
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/mapper"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const (
	eventNodeStatus  = "node:status"
	eventNodeState   = "node:state"
	eventSubscribe   = "nodes:subscribe"
	eventUnsubscribe = "nodes:unsubscribe"
)

// Transport is a socket.io-backed push transport.
type Transport struct {
	manager   *socket.Manager
	io        *socket.Socket
	namespace string
	logger    *slog.Logger

	mu             sync.Mutex
	connected      bool
	everConnected  bool
	nextID         int
	statusHandlers map[string]map[int]func(domain.StatusUpdate)
	stateHandlers  map[string]map[int]func(map[string]any)
	onConnected    map[int]func()
	onReconnected  map[int]func()
	onDisconnected map[int]func()
	waiters        []chan struct{}
}

// Option configures the Transport.
type Option func(*config)

type config struct {
	namespace          string
	logger             *slog.Logger
	insecureSkipVerify bool
}

// WithNamespace sets the socket.io namespace (default "/").
func WithNamespace(ns string) Option {
	return func(c *config) { c.namespace = ns }
}

// WithLogger sets a structured logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithInsecureSkipVerify disables TLS certificate verification. Dev only.
func WithInsecureSkipVerify() Option {
	return func(c *config) { c.insecureSkipVerify = true }
}

// NewTransport builds a transport for the given socket.io endpoint URL.
func NewTransport(rawURL string, opts ...Option) (*Transport, error) {
	cfg := &config{namespace: "/", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transport URL: %w", err)
	}
	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)

	sockOpts := socket.DefaultOptions()
	if parsed.Path != "" {
		sockOpts.SetPath(parsed.Path)
	}
	sockOpts.SetTransports(types.NewSet(transports.WebSocket))
	if cfg.insecureSkipVerify {
		cfg.logger.Warn("skipping TLS certificate verification")
		sockOpts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	manager := socket.NewManager(baseURL, sockOpts)
	t := &Transport{
		manager:        manager,
		io:             manager.Socket(cfg.namespace, sockOpts),
		namespace:      cfg.namespace,
		logger:         cfg.logger,
		statusHandlers: make(map[string]map[int]func(domain.StatusUpdate)),
		stateHandlers:  make(map[string]map[int]func(map[string]any)),
		onConnected:    make(map[int]func()),
		onReconnected:  make(map[int]func()),
		onDisconnected: make(map[int]func()),
	}
	t.listen()
	return t, nil
}

// listen installs the fixed socket listeners. Per-node dispatch happens in
// the adapter's own registries.
func (t *Transport) listen() {
	t.io.On(types.EventName("connect"), func(...any) {
		t.mu.Lock()
		t.connected = true
		recon := t.everConnected
		t.everConnected = true
		var fns []func()
		if recon {
			fns = snapshotFuncs(t.onReconnected)
		} else {
			fns = snapshotFuncs(t.onConnected)
		}
		waiters := t.waiters
		t.waiters = nil
		t.mu.Unlock()

		t.logger.Info("transport connected", "namespace", t.namespace, "sid", t.io.Id(), "reconnect", recon)
		for _, w := range waiters {
			close(w)
		}
		for _, fn := range fns {
			fn()
		}
	})

	t.io.On(types.EventName("disconnect"), func(...any) {
		t.mu.Lock()
		t.connected = false
		fns := snapshotFuncs(t.onDisconnected)
		t.mu.Unlock()

		t.logger.Warn("transport disconnected", "namespace", t.namespace)
		for _, fn := range fns {
			fn()
		}
	})

	t.io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			t.logger.Warn("transport connect error", "err", errs[0])
		}
	})

	t.io.On(types.EventName(eventNodeStatus), func(data ...any) {
		if len(data) == 0 {
			return
		}
		nodeID, ok := payloadNodeID(data[0])
		if !ok {
			t.logger.Debug("dropping status event without node id")
			return
		}
		update, err := mapper.DecodeStatusPayload(data[0])
		if err != nil {
			t.logger.Warn("failed to decode status event", "node_id", nodeID, "err", err)
			return
		}
		for _, fn := range t.statusFuncs(nodeID) {
			fn(update)
		}
	})

	t.io.On(types.EventName(eventNodeState), func(data ...any) {
		if len(data) == 0 {
			return
		}
		payload, ok := data[0].(map[string]any)
		if !ok {
			return
		}
		nodeID, ok := payloadNodeID(payload)
		if !ok {
			return
		}
		state, _ := payload["state"].(map[string]any)
		for _, fn := range t.stateFuncs(nodeID) {
			fn(state)
		}
	})
}

// Connect establishes the connection and waits for the first "connect"
// event or context expiry.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	t.waiters = append(t.waiters, ready)
	t.mu.Unlock()

	t.io.Connect()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for transport connection: %w", ctx.Err())
	}
}

// SubscribeNodes joins the rooms for the given node ids in one batch.
func (t *Transport) SubscribeNodes(ids []string) (func(), error) {
	batch := append([]string(nil), ids...)
	t.logger.Debug("joining node rooms", "nodes", len(batch))
	t.io.Emit(eventSubscribe, map[string]any{"nodes": batch})
	return func() {
		t.io.Emit(eventUnsubscribe, map[string]any{"nodes": batch})
	}, nil
}

// OnNodeStatus registers a status callback for one node.
func (t *Transport) OnNodeStatus(nodeID string, fn func(domain.StatusUpdate)) func() {
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

// OnNodeState registers a state callback for one node.
func (t *Transport) OnNodeState(nodeID string, fn func(map[string]any)) func() {
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

// OnConnected registers a first-connection callback.
func (t *Transport) OnConnected(fn func()) func() {
	return t.register(t.onConnected, fn)
}

// OnReconnected registers a reconnection callback.
func (t *Transport) OnReconnected(fn func()) func() {
	return t.register(t.onReconnected, fn)
}

// OnDisconnected registers a disconnection callback.
func (t *Transport) OnDisconnected(fn func()) func() {
	return t.register(t.onDisconnected, fn)
}

// IsConnected reports the current socket state.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Close disconnects the socket.
func (t *Transport) Close() error {
	t.io.Disconnect()
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

func (t *Transport) register(m map[int]func(), fn func()) func() {
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

func (t *Transport) statusFuncs(nodeID string) []func(domain.StatusUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fns := make([]func(domain.StatusUpdate), 0, len(t.statusHandlers[nodeID]))
	for _, fn := range t.statusHandlers[nodeID] {
		fns = append(fns, fn)
	}
	return fns
}

func (t *Transport) stateFuncs(nodeID string) []func(map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fns := make([]func(map[string]any), 0, len(t.stateHandlers[nodeID]))
	for _, fn := range t.stateHandlers[nodeID] {
		fns = append(fns, fn)
	}
	return fns
}

func payloadNodeID(payload any) (string, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := m["nodeId"].(string)
	return id, ok && id != ""
}

func snapshotFuncs(m map[int]func()) []func() {
	fns := make([]func(), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	return fns
}

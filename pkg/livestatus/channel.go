// Package livestatus keeps per-node displayed status consistent with the
// server despite two independent, unordered update sources: transport push
// events and periodic poll fetches. It owns the Live/Degraded state machine
// used while the transport is disconnected and the monotonic-timestamp
// merge that makes update processing order-independent.
package livestatus

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/clock"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
)

const (
	// DefaultPollInterval is the Degraded(1) poll cadence.
	DefaultPollInterval = 5 * time.Second
	// DefaultMaxPollInterval caps the exponential backoff.
	DefaultMaxPollInterval = 60 * time.Second
)

// Applier receives reconciled updates. *session.Store satisfies it; the
// channel never references the store type directly.
type Applier interface {
	ApplyNodeStatus(id string, update domain.StatusUpdate) error
	ApplyNodeState(id string, state map[string]any) error
}

// subscription tracks one node's push handlers. refs counts logical
// subscribers so double-subscribing never double-registers callbacks.
type subscription struct {
	refs      int
	offStatus func()
	offState  func()
}

// Channel is the live status channel of one session.
type Channel struct {
	gateway   ports.Gateway
	transport ports.Transport
	applier   Applier
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	clock     clock.Clock

	baseInterval time.Duration
	maxInterval  time.Duration

	mu          sync.Mutex
	closed      bool
	mode        domain.ChannelMode
	level       int
	pollTimer   clock.Timer
	subs        map[string]*subscription
	roomOff     func()
	lastApplied map[string]time.Time
	gates       map[string]*sync.Mutex
	offEvents   []func()
}

// Option configures the Channel.
type Option func(*Channel)

// WithLogger sets a structured logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Channel) { c.hooks = hooks }
}

// WithClock injects a clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Channel) { c.clock = clk }
}

// WithPollInterval overrides the Degraded(1) poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Channel) { c.baseInterval = d }
}

// WithMaxPollInterval overrides the backoff cap.
func WithMaxPollInterval(d time.Duration) Option {
	return func(c *Channel) { c.maxInterval = d }
}

// NewChannel wires a channel between the transport, the gateway (poll
// fallback) and the applier that owns the displayed model.
func NewChannel(gateway ports.Gateway, transport ports.Transport, applier Applier, opts ...Option) *Channel {
	c := &Channel{
		gateway:      gateway,
		transport:    transport,
		applier:      applier,
		logger:       logging.NewNop(),
		clock:        clock.System(),
		baseInterval: DefaultPollInterval,
		maxInterval:  DefaultMaxPollInterval,
		mode:         domain.ModeLive,
		subs:         make(map[string]*subscription),
		lastApplied:  make(map[string]time.Time),
		gates:        make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start registers the connectivity handlers and connects the transport.
// A failed connect is not fatal: the channel enters degraded mode and
// polls until the transport comes up.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	c.offEvents = append(c.offEvents,
		c.transport.OnConnected(c.handleUp),
		c.transport.OnReconnected(c.handleUp),
		c.transport.OnDisconnected(c.handleDown),
	)
	c.mu.Unlock()

	if err := c.transport.Connect(ctx); err != nil {
		c.logger.Warn("transport connect failed, falling back to polling", "err", err)
		c.handleDown()
		return nil
	}
	return nil
}

// Subscribe starts tracking one node. Idempotent: repeated subscriptions
// increment a reference count instead of re-registering handlers or
// re-joining rooms.
func (c *Channel) Subscribe(nodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrClosed
	}
	if sub, ok := c.subs[nodeID]; ok {
		sub.refs++
		return nil
	}
	sub := &subscription{refs: 1}
	sub.offStatus = c.transport.OnNodeStatus(nodeID, func(u domain.StatusUpdate) {
		c.ingestStatus(nodeID, u, "push")
	})
	sub.offState = c.transport.OnNodeState(nodeID, func(state map[string]any) {
		c.ingestState(nodeID, state)
	})
	c.subs[nodeID] = sub
	c.refreshRoomLocked()
	return nil
}

// Unsubscribe drops one reference to a node. When the last reference goes,
// both push handlers are torn down and room membership shrinks; when no
// node remains, the channel leaves the transport room entirely.
func (c *Channel) Unsubscribe(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[nodeID]
	if !ok {
		return
	}
	sub.refs--
	if sub.refs > 0 {
		return
	}
	sub.offStatus()
	sub.offState()
	delete(c.subs, nodeID)
	delete(c.lastApplied, nodeID)
	delete(c.gates, nodeID)
	c.refreshRoomLocked()
}

// Close tears down every handler, the poll timer and the room membership.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
	for _, off := range c.offEvents {
		off()
	}
	c.offEvents = nil
	for id, sub := range c.subs {
		sub.offStatus()
		sub.offState()
		delete(c.subs, id)
	}
	if c.roomOff != nil {
		c.roomOff()
		c.roomOff = nil
	}
}

// Mode returns the connectivity mode and the degradation level.
func (c *Channel) Mode() (domain.ChannelMode, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, c.level
}

// PollInterval returns the currently effective poll interval (zero while
// live).
func (c *Channel) PollInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != domain.ModeDegraded {
		return 0
	}
	return c.pollIntervalLocked()
}

// refreshRoomLocked re-issues the transport room subscription for the full
// current id set: sorted and deduplicated (map keys) in one batch.
func (c *Channel) refreshRoomLocked() {
	if c.roomOff != nil {
		c.roomOff()
		c.roomOff = nil
	}
	ids := c.subscribedIDsLocked()
	if len(ids) == 0 {
		return
	}
	off, err := c.transport.SubscribeNodes(ids)
	if err != nil {
		c.logger.Warn("failed to join node rooms", "nodes", len(ids), "err", err)
		return
	}
	c.roomOff = off
}

// gateLocked returns the per-node ingest gate, creating it on first use.
// The gate serializes the stale check and the apply for one node without
// blocking the channel mutex, so appliers are free to call back into
// Subscribe and Unsubscribe.
func (c *Channel) gateLocked(nodeID string) *sync.Mutex {
	gate, ok := c.gates[nodeID]
	if !ok {
		gate = &sync.Mutex{}
		c.gates[nodeID] = gate
	}
	return gate
}

func (c *Channel) subscribedIDsLocked() []string {
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

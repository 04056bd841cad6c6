package weave

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/clock"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/livestatus"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/aretw0/weave/pkg/session"
)

// Client is the high-level entry point. It owns one Graph Session Store
// and, when a transport is configured, one Live Status Channel, and keeps
// the channel's node subscriptions in sync with the store's node set.
type Client struct {
	gateway   ports.Gateway
	transport ports.Transport
	cache     ports.SnapshotCache
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	clk       clock.Clock

	debounce time.Duration
	pollBase time.Duration
	pollMax  time.Duration

	store   *session.Store
	channel *livestatus.Channel

	mu         sync.Mutex
	subscribed map[string]bool
	offStore   func()
	opened     bool
}

// Option defines a functional option for configuring the Client.
type Option func(*Client)

// WithTransport enables live push updates over the given transport.
func WithTransport(t ports.Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithSnapshotCache enables last-known-status warm-up and write-behind.
func WithSnapshotCache(cache ports.SnapshotCache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithLifecycleHooks registers observability hooks, shared by the store
// and the channel.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Client) { c.hooks = hooks }
}

// WithDebounce overrides the save debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *Client) { c.debounce = d }
}

// WithPollInterval overrides the degraded-mode poll base and cap.
func WithPollInterval(base, max time.Duration) Option {
	return func(c *Client) {
		c.pollBase = base
		c.pollMax = max
	}
}

// WithClock injects a clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clk = clk }
}

// New creates a Client bound to a persistence gateway.
func New(gateway ports.Gateway, opts ...Option) (*Client, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	c := &Client{
		gateway:    gateway,
		logger:     logging.NewNop(),
		clk:        clock.System(),
		debounce:   session.DefaultDebounce,
		pollBase:   livestatus.DefaultPollInterval,
		pollMax:    livestatus.DefaultMaxPollInterval,
		subscribed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.store = session.NewStore(gateway,
		session.WithLogger(c.logger),
		session.WithHooks(c.hooks),
		session.WithClock(c.clk),
		session.WithDebounce(c.debounce),
	)
	if c.transport != nil {
		c.channel = livestatus.NewChannel(gateway, c.transport, c.applier(),
			livestatus.WithLogger(c.logger),
			livestatus.WithHooks(c.hooks),
			livestatus.WithClock(c.clk),
			livestatus.WithPollInterval(c.pollBase),
			livestatus.WithMaxPollInterval(c.pollMax),
		)
	}
	return c, nil
}

// Open loads the graph, warms statuses from the snapshot cache, starts the
// live channel and subscribes every node.
func (c *Client) Open(ctx context.Context, graph string) error {
	if err := c.store.Load(ctx, graph); err != nil {
		return err
	}
	c.warmFromCache(ctx, graph)

	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()

	if c.channel != nil {
		if err := c.channel.Start(ctx); err != nil {
			return fmt.Errorf("failed to start live status channel: %w", err)
		}
		c.syncSubscriptions(c.store.Snapshot())
		c.offStore = c.store.Subscribe(c.syncSubscriptions)
	}
	return nil
}

// Close tears the session down. In-flight requests may finish; their
// results are discarded.
func (c *Client) Close() {
	c.mu.Lock()
	off := c.offStore
	c.offStore = nil
	c.mu.Unlock()
	if off != nil {
		off()
	}
	if c.channel != nil {
		c.channel.Close()
	}
	c.store.Close()
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			c.logger.Debug("transport close failed", "err", err)
		}
	}
}

// Store exposes the graph session store.
func (c *Client) Store() *session.Store { return c.store }

// Channel exposes the live status channel, or nil when no transport is
// configured.
func (c *Client) Channel() *livestatus.Channel { return c.channel }

// syncSubscriptions keeps channel membership aligned with the node set:
// nodes added to the graph get subscribed, removed nodes get unsubscribed.
func (c *Client) syncSubscriptions(snap session.Snapshot) {
	if c.channel == nil {
		return
	}
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return
	}
	current := make(map[string]bool, len(snap.Nodes))
	for _, n := range snap.Nodes {
		current[n.ID] = true
	}
	var added, removed []string
	for id := range current {
		if !c.subscribed[id] {
			added = append(added, id)
			c.subscribed[id] = true
		}
	}
	for id := range c.subscribed {
		if !current[id] {
			removed = append(removed, id)
			delete(c.subscribed, id)
		}
	}
	c.mu.Unlock()

	for _, id := range added {
		if err := c.channel.Subscribe(id); err != nil {
			c.logger.Warn("failed to subscribe node", "node_id", id, "err", err)
		}
	}
	for _, id := range removed {
		c.channel.Unsubscribe(id)
	}
}

// warmFromCache paints last-known statuses for nodes the load left without
// runtime information. Strictly best-effort.
func (c *Client) warmFromCache(ctx context.Context, graph string) {
	if c.cache == nil {
		return
	}
	snaps, err := c.cache.Statuses(ctx, graph)
	if err != nil {
		c.logger.Debug("snapshot cache read failed", "err", err)
		return
	}
	for _, node := range c.store.Nodes() {
		if node.Runtime.ProvisionStatus != nil {
			continue
		}
		update, ok := snaps[node.ID]
		if !ok {
			continue
		}
		if err := c.store.ApplyNodeStatus(node.ID, update); err != nil {
			c.logger.Debug("cached status not applied", "node_id", node.ID, "err", err)
		}
	}
}

// applier returns the channel's sink: updates land in the store first and
// are then written behind to the snapshot cache.
func (c *Client) applier() livestatus.Applier {
	if c.cache == nil {
		return c.store
	}
	return &cachingApplier{client: c}
}

type cachingApplier struct {
	client *Client
}

func (a *cachingApplier) ApplyNodeStatus(id string, update domain.StatusUpdate) error {
	if err := a.client.store.ApplyNodeStatus(id, update); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.client.cache.PutStatus(ctx, a.client.store.Name(), id, update); err != nil {
		a.client.logger.Debug("snapshot cache write failed", "node_id", id, "err", err)
	}
	return nil
}

func (a *cachingApplier) ApplyNodeState(id string, state map[string]any) error {
	return a.client.store.ApplyNodeState(id, state)
}

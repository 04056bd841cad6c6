// Package redis implements ports.SnapshotCache on Redis. A reloading
// client reads the last-known statuses from here and paints them before
// the network answers.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/weave/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Cache stores per-graph status snapshots in a Redis hash
// (<prefix><graph> -> field per node id).
type Cache struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Cache.
type Option func(*Cache)

// WithPrefix sets the key prefix for snapshots.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithTTL sets the expiration refreshed on every write. Zero means no
// expiration.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// New creates a cache with its own Redis client.
func New(address, password string, db int, opts ...Option) *Cache {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a cache from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		prefix: "weave:snapshot:",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(graph string) string {
	return c.prefix + graph
}

// PutStatus records the latest applied status update for one node.
func (c *Cache) PutStatus(ctx context.Context, graph, nodeID string, update domain.StatusUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal status snapshot: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, c.key(graph), nodeID, data)
	if c.ttl > 0 {
		pipe.Expire(ctx, c.key(graph), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write snapshot to redis: %w", err)
	}
	return nil
}

// Statuses returns all cached updates for a graph, keyed by node id.
// Entries that fail to decode are skipped rather than failing the read.
func (c *Cache) Statuses(ctx context.Context, graph string) (map[string]domain.StatusUpdate, error) {
	fields, err := c.client.HGetAll(ctx, c.key(graph)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots from redis: %w", err)
	}
	out := make(map[string]domain.StatusUpdate, len(fields))
	for nodeID, raw := range fields {
		var update domain.StatusUpdate
		if err := json.Unmarshal([]byte(raw), &update); err != nil {
			continue
		}
		out[nodeID] = update
	}
	return out, nil
}

// Clear drops every cached entry for a graph.
func (c *Cache) Clear(ctx context.Context, graph string) error {
	if err := c.client.Del(ctx, c.key(graph)).Err(); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

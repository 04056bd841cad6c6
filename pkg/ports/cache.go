package ports

import (
	"context"

	"github.com/aretw0/weave/pkg/domain"
)

// SnapshotCache stores the last-known status per node so a reloading client
// can paint statuses before the network answers. Strictly best-effort:
// callers log cache errors and move on.
type SnapshotCache interface {
	// PutStatus records the latest applied status update for a node.
	PutStatus(ctx context.Context, graph, nodeID string, update domain.StatusUpdate) error

	// Statuses returns all cached updates for a graph, keyed by node id.
	Statuses(ctx context.Context, graph string) (map[string]domain.StatusUpdate, error)

	// Clear drops every cached entry for a graph.
	Clear(ctx context.Context, graph string) error
}

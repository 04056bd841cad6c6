package ports

import (
	"context"

	"github.com/aretw0/weave/pkg/domain"
)

// Gateway is the remote persistence API for graphs, templates and per-node
// runtime data. All methods are network calls; failures must come back as
// errors with a human-readable message, never as partial results.
type Gateway interface {
	// FetchGraph returns the authoritative graph document.
	FetchGraph(ctx context.Context, name string) (*domain.Document, error)

	// SaveGraph submits a full document built from live state + shadow
	// metadata and returns the accepted baseline. The document's Version
	// must be the last fetched/accepted one; the server decides whether it
	// still matches.
	SaveGraph(ctx context.Context, doc *domain.Document) (*domain.Baseline, error)

	// FetchTemplates returns the node catalog.
	FetchTemplates(ctx context.Context) ([]domain.Template, error)

	// FetchNodeStatus returns the current status snapshot for one node.
	// The result carries no timestamp; callers stamp it on arrival.
	FetchNodeStatus(ctx context.Context, nodeID string) (*domain.StatusUpdate, error)

	// FetchNodeState returns the server-owned state blob for one node.
	FetchNodeState(ctx context.Context, nodeID string) (map[string]any, error)

	// PutNodeState replaces the server-owned state blob for one node.
	PutNodeState(ctx context.Context, nodeID string, state map[string]any) error

	// Provision triggers the provision lifecycle action for one node.
	Provision(ctx context.Context, nodeID string) error

	// Deprovision triggers the deprovision lifecycle action for one node.
	Deprovision(ctx context.Context, nodeID string) error
}

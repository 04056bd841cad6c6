package ports

import (
	"context"

	"github.com/aretw0/weave/pkg/domain"
)

// Transport is the push side of the remote API. Implementations own the
// wire protocol (socket.io, websockets, ...); the core only builds
// reconciliation policy on top.
//
// Handler registrations return an off function that removes exactly the
// registered callback. Registrations survive reconnects; room membership
// (SubscribeNodes) may not, which is why the channel re-subscribes in batch
// on reconnect.
type Transport interface {
	// Connect establishes the connection. It returns once the transport is
	// usable or the context is done.
	Connect(ctx context.Context) error

	// SubscribeNodes joins the rooms for the given node ids so the server
	// starts pushing their events. The returned func leaves those rooms.
	SubscribeNodes(ids []string) (func(), error)

	// OnNodeStatus registers a callback for status pushes of one node.
	OnNodeStatus(nodeID string, fn func(domain.StatusUpdate)) (off func())

	// OnNodeState registers a callback for state pushes of one node.
	OnNodeState(nodeID string, fn func(map[string]any)) (off func())

	// OnConnected fires on the first successful connection.
	OnConnected(fn func()) (off func())

	// OnReconnected fires when a dropped connection is re-established.
	OnReconnected(fn func()) (off func())

	// OnDisconnected fires when the connection is lost.
	OnDisconnected(fn func()) (off func())

	// IsConnected reports the current connection state.
	IsConnected() bool

	// Close tears the connection down.
	Close() error
}

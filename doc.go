// Package weave is the client-side synchronization core behind a
// graph-based workflow editor.
//
// It keeps an in-memory, editable model of a directed graph (nodes, ports,
// edges) consistent with a remote authoritative store, while reconciling
// asynchronous, out-of-order server-pushed status updates per node.
//
// The core is split into a Graph Session Store (pkg/session), which owns
// the editable model and a debounced single-flight save scheduler, and a
// Live Status Channel (pkg/livestatus), which owns push subscriptions,
// monotonic-timestamp reconciliation and the poll backoff used while the
// transport is down. The two never reference each other; the Client in
// this package wires them the way a screen controller would.
package weave

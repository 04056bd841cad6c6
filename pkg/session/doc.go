// Package session owns the live, editable graph model of one editing
// session: nodes, shadow metadata, edges and the last-accepted baseline.
//
// Mutations are synchronous against the in-memory model; persistence is
// handled by a debounced, single-flight save scheduler that drains queued
// edits after each request. Server-originated status/state updates enter
// through the Apply functions and never trigger a save.
package session

package domain

import "errors"

// ErrNodeNotFound is returned when an operation targets a node id that is
// not part of the session.
var ErrNodeNotFound = errors.New("node not found")

// ErrMissingMetadata is returned when a displayed node has no shadow
// metadata entry. This is a programming error: saving would silently drop
// the node, so the save fails loudly instead.
var ErrMissingMetadata = errors.New("node metadata missing")

// ErrNotHydrated is returned when a session is used before a successful load.
var ErrNotHydrated = errors.New("session not hydrated")

// ErrClosed is returned when a session or channel is used after teardown.
var ErrClosed = errors.New("session closed")

// ErrTemplateNotFound is returned when a node references a template that is
// not in the catalog.
var ErrTemplateNotFound = errors.New("template not found")

// ErrActionNotAllowed is returned when a lifecycle action is invoked on a
// node whose capabilities do not permit it.
var ErrActionNotAllowed = errors.New("lifecycle action not allowed")

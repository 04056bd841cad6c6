// Package ports defines the boundary interfaces of the weave core.
//
// The session store and the live status channel depend only on these
// contracts; concrete implementations live under pkg/adapters. Everything
// behind a port is an external collaborator: the remote persistence API,
// the push transport, and the optional snapshot cache.
package ports

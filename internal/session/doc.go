// Package session owns the only mutable shared state in the service: the
// mapping from opaque session keys to bounded conversation history. The
// in-memory store is the default; the Redis store is a drop-in replacement
// for deployments that want history to outlive the process.
package session

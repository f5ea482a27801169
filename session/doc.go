// Package session provides the session trust layer of the gateway: a
// registry that mints short TTL-bounded aliases for long opaque
// identifiers, and an ownership arbiter that decides whether this process
// may act on a session persisted by another process.
package session

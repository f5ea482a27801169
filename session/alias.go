package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/giantswarm/mcp-fsgate/instrumentation"
)

// DefaultAliasTTL is the default lifetime of a minted alias.
const DefaultAliasTTL = 30 * time.Minute

// Kind names an alias namespace. Counters and reverse lookups are scoped
// per kind; the prefix is the single letter that leads every alias of that
// kind.
type Kind struct {
	Name   string
	Prefix string
}

// Predefined alias kinds
var (
	KindSession = Kind{Name: "session", Prefix: "S"}
	KindMessage = Kind{Name: "message", Prefix: "M"}
)

type forwardKey struct {
	kind string
	id   string
}

type reverseKey struct {
	kind  string
	alias string
}

type aliasEntry struct {
	alias    string
	mintedAt time.Time
}

// AliasRegistry mints and resolves short aliases for long opaque
// identifiers. Mappings expire after a TTL and expired aliases never
// resolve again; a later mint for the same identifier draws a fresh
// counter value. The registry is explicitly constructed, there is no
// package-level state.
type AliasRegistry struct {
	mu       sync.Mutex
	now      func() time.Time
	ttl      func() time.Duration
	counters map[string]int
	forward  map[forwardKey]*aliasEntry
	reverse  map[reverseKey]string

	instrumentation *instrumentation.Instrumentation
	logger          *slog.Logger
}

// NewAliasRegistry creates a registry with the given clock and TTL
// providers. Nil providers fall back to time.Now and DefaultAliasTTL.
func NewAliasRegistry(now func() time.Time, ttl func() time.Duration) *AliasRegistry {
	if now == nil {
		now = time.Now
	}
	if ttl == nil {
		ttl = func() time.Duration { return DefaultAliasTTL }
	}
	return &AliasRegistry{
		now:      now,
		ttl:      ttl,
		counters: make(map[string]int),
		forward:  make(map[forwardKey]*aliasEntry),
		reverse:  make(map[reverseKey]string),
		logger:   slog.Default(),
	}
}

// SetLogger sets a custom logger
func (r *AliasRegistry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the registry
func (r *AliasRegistry) SetInstrumentation(inst *instrumentation.Instrumentation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instrumentation = inst
}

// AliasFor returns the stable alias for underlyingID within kind's
// namespace, minting the next counter value when no live mapping exists.
// Minting and the reverse-index update happen atomically under the
// registry mutex, so two concurrent callers cannot mint two aliases for
// the same identifier.
//
// contextID names the originating connection. It is accepted for logging
// only and must not affect the result: the mapping is global, two
// contexts referring to the same identifier see the same alias.
func (r *AliasRegistry) AliasFor(kind Kind, underlyingID, contextID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	fk := forwardKey{kind: kind.Name, id: underlyingID}
	if entry, ok := r.forward[fk]; ok && r.live(entry.mintedAt) {
		return entry.alias
	}

	r.counters[kind.Name]++
	alias := fmt.Sprintf("%s%04d", kind.Prefix, r.counters[kind.Name])

	entry := &aliasEntry{alias: alias, mintedAt: r.now()}
	r.forward[fk] = entry
	r.reverse[reverseKey{kind: kind.Name, alias: alias}] = underlyingID

	r.logger.Debug("Minted alias",
		"kind", kind.Name,
		"alias", alias,
		"context_id", contextID)

	if r.instrumentation != nil {
		r.instrumentation.Metrics().RecordAliasMinted(context.Background(), kind.Name)
	}

	return alias
}

// ResolveAlias returns the underlying identifier for alias if the mapping
// is live. Expired aliases report not-found even while the row is still
// physically present, and are never resurrected.
func (r *AliasRegistry) ResolveAlias(kind Kind, alias, contextID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.reverse[reverseKey{kind: kind.Name, alias: alias}]
	if !ok {
		return "", false
	}

	// The forward entry may have been re-minted; only the current forward
	// entry keeps an alias resolvable.
	entry, ok := r.forward[forwardKey{kind: kind.Name, id: id}]
	if !ok || entry.alias != alias || !r.live(entry.mintedAt) {
		return "", false
	}

	return id, true
}

// Sweep removes expired mappings and returns the count removed. Resolution
// is already lazy, so sweeping only reclaims memory.
func (r *AliasRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for fk, entry := range r.forward {
		if !r.live(entry.mintedAt) {
			delete(r.forward, fk)
			delete(r.reverse, reverseKey{kind: fk.kind, alias: entry.alias})
			removed++
		}
	}
	return removed
}

// live reports whether a mint time is within the TTL. Caller holds the mutex.
func (r *AliasRegistry) live(mintedAt time.Time) bool {
	return r.now().Sub(mintedAt) <= r.ttl()
}

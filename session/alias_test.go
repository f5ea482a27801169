package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-fsgate/internal/testutil"
)

func newTestRegistry(clock *testutil.MockTime, ttl time.Duration) *AliasRegistry {
	return NewAliasRegistry(clock.Now, func() time.Duration { return ttl })
}

func TestAliasForIsIdempotentAcrossContexts(t *testing.T) {
	clock := testutil.NewMockTime(time.Now())
	r := newTestRegistry(clock, time.Hour)

	first := r.AliasFor(KindSession, "ses_123", "ctxA")
	second := r.AliasFor(KindSession, "ses_123", "ctxB")

	assert.Equal(t, "S0001", first)
	assert.Equal(t, first, second, "alias must be global, not per context")
}

func TestAliasFormatAndCountersPerKind(t *testing.T) {
	clock := testutil.NewMockTime(time.Now())
	r := newTestRegistry(clock, time.Hour)

	assert.Equal(t, "S0001", r.AliasFor(KindSession, "ses_a", "ctx"))
	assert.Equal(t, "S0002", r.AliasFor(KindSession, "ses_b", "ctx"))
	assert.Equal(t, "M0001", r.AliasFor(KindMessage, "msg_a", "ctx"))
	assert.Equal(t, "M0002", r.AliasFor(KindMessage, "msg_b", "ctx"))
}

func TestResolveAliasRoundTrip(t *testing.T) {
	clock := testutil.NewMockTime(time.Now())
	r := newTestRegistry(clock, time.Hour)

	alias := r.AliasFor(KindSession, "ses_123", "ctx")

	id, ok := r.ResolveAlias(KindSession, alias, "ctx")
	require.True(t, ok)
	assert.Equal(t, "ses_123", id)

	_, ok = r.ResolveAlias(KindSession, "S9999", "ctx")
	assert.False(t, ok, "unknown alias must not resolve")

	_, ok = r.ResolveAlias(KindMessage, alias, "ctx")
	assert.False(t, ok, "alias must not resolve in a different kind namespace")
}

func TestExpiredAliasNeverResolves(t *testing.T) {
	clock := testutil.NewMockTime(time.Now())
	r := newTestRegistry(clock, 10*time.Minute)

	alias := r.AliasFor(KindSession, "ses_123", "ctx")

	clock.Advance(11 * time.Minute)

	_, ok := r.ResolveAlias(KindSession, alias, "ctx")
	assert.False(t, ok, "expired alias must not resolve")

	// A fresh mint draws a new counter value, never the old alias
	reminted := r.AliasFor(KindSession, "ses_123", "ctx")
	assert.Equal(t, "S0002", reminted)
	assert.NotEqual(t, alias, reminted)

	// The old alias stays dead even after the re-mint
	_, ok = r.ResolveAlias(KindSession, alias, "ctx")
	assert.False(t, ok)

	id, ok := r.ResolveAlias(KindSession, reminted, "ctx")
	require.True(t, ok)
	assert.Equal(t, "ses_123", id)
}

func TestSweepReclaimsExpiredMappings(t *testing.T) {
	clock := testutil.NewMockTime(time.Now())
	r := newTestRegistry(clock, 10*time.Minute)

	r.AliasFor(KindSession, "ses_old", "ctx")
	clock.Advance(11 * time.Minute)
	fresh := r.AliasFor(KindSession, "ses_new", "ctx")

	assert.Equal(t, 1, r.Sweep())

	// The live mapping survives the sweep
	id, ok := r.ResolveAlias(KindSession, fresh, "ctx")
	require.True(t, ok)
	assert.Equal(t, "ses_new", id)
}

func TestAliasConcurrentMintSingleAlias(t *testing.T) {
	clock := testutil.NewMockTime(time.Now())
	r := newTestRegistry(clock, time.Hour)

	const workers = 16
	results := make(chan string, workers)
	for i := 0; i < workers; i++ {
		go func() {
			results <- r.AliasFor(KindSession, "ses_contended", "ctx")
		}()
	}

	seen := make(map[string]struct{})
	for i := 0; i < workers; i++ {
		seen[<-results] = struct{}{}
	}
	assert.Len(t, seen, 1, "concurrent callers must agree on one alias")
}

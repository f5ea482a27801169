// Package memory provides an in-memory implementation of the credential
// store. It is suitable for development, testing, and single-instance
// deployments where credentials do not need to survive a restart.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-fsgate/instrumentation"
	"github.com/giantswarm/mcp-fsgate/internal/util"
	"github.com/giantswarm/mcp-fsgate/security"
	"github.com/giantswarm/mcp-fsgate/storage"
)

const (
	// tokenIDLogLength is the number of characters to include when logging token values
	// This provides enough uniqueness for debugging while keeping logs secure
	tokenIDLogLength = 8
)

// Store is an in-memory implementation of storage.CredentialStore.
type Store struct {
	mu sync.RWMutex

	codes         map[string]*storage.AuthorizationCode
	accessTokens  map[string]*storage.Token
	refreshTokens map[string]*storage.Token
	reuseRecords  map[string]*storage.RefreshTokenReuse
	clients       map[string]*storage.Client

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	codesCountAtomic         atomic.Int64
	accessTokensCountAtomic  atomic.Int64
	refreshTokensCountAtomic atomic.Int64
	reuseRecordsCountAtomic  atomic.Int64
	clientsCountAtomic       atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	now    func() time.Time
	logger *slog.Logger
}

// Compile-time interface check
var _ storage.CredentialStore = (*Store)(nil)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	return &Store{
		codes:           make(map[string]*storage.AuthorizationCode),
		accessTokens:    make(map[string]*storage.Token),
		refreshTokens:   make(map[string]*storage.Token),
		reuseRecords:    make(map[string]*storage.RefreshTokenReuse),
		clients:         make(map[string]*storage.Client),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
		logger:          slog.Default(),
	}
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetTimeProvider sets a custom time source. Used by tests to control expiry.
func (s *Store) SetTimeProvider(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}

	// Initialize atomic counters with current counts
	s.codesCountAtomic.Store(int64(len(s.codes)))
	s.accessTokensCountAtomic.Store(int64(len(s.accessTokens)))
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))
	s.reuseRecordsCountAtomic.Store(int64(len(s.reuseRecords)))
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.mu.Unlock()

	if inst != nil {
		// Register storage size callbacks using atomic counters (lock-free)
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.codesCountAtomic.Load() },
			func() int64 { return s.accessTokensCountAtomic.Load() },
			func() int64 { return s.refreshTokensCountAtomic.Load() },
			func() int64 { return s.reuseRecordsCountAtomic.Load() },
			func() int64 { return s.clientsCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Init starts the background cleanup goroutine. Safe to call once.
func (s *Store) Init(ctx context.Context) error {
	go s.cleanupLoop()
	return nil
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// ============================================================
// Authorization codes
// ============================================================

// GetCode retrieves an authorization code. Expired codes are reported as
// storage.ErrNotFound.
func (s *Store) GetCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "get_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_code", err, startTime)
	}()

	if code == "" {
		err = fmt.Errorf("code cannot be empty")
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.codes[code]
	if !ok || s.expired(record.ExpiresAt) {
		err = fmt.Errorf("authorization code %s: %w", util.SafeTruncate(code, tokenIDLogLength), storage.ErrNotFound)
		return nil, err
	}

	return record, nil
}

// SetCode stores an authorization code
func (s *Store) SetCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startStorageSpan(ctx, "set_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "set_code", err, startTime)
	}()

	if code == nil || code.Code == "" {
		err = fmt.Errorf("code cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.codes[code.Code]
	s.codes[code.Code] = code
	if !existed {
		s.codesCountAtomic.Add(1)
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)

	return nil
}

// DeleteCode removes an authorization code. Deleting a missing code is not
// an error.
func (s *Store) DeleteCode(ctx context.Context, code string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "delete_code", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code]; ok {
		delete(s.codes, code)
		s.codesCountAtomic.Add(-1)
	}

	return nil
}

// ============================================================
// Access tokens
// ============================================================

// GetAccessToken retrieves an access token. Expired tokens are reported as
// storage.ErrNotFound.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_access_token", err, startTime)
	}()

	if token == "" {
		err = fmt.Errorf("token cannot be empty")
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.accessTokens[token]
	if !ok || s.expired(record.ExpiresAt) {
		err = fmt.Errorf("access token %s: %w", util.SafeTruncate(token, tokenIDLogLength), storage.ErrNotFound)
		return nil, err
	}

	return record, nil
}

// SetAccessToken stores an access token
func (s *Store) SetAccessToken(ctx context.Context, token *storage.Token) error {
	ctx, span := s.startStorageSpan(ctx, "set_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "set_access_token", err, startTime)
	}()

	if token == nil || token.Value == "" {
		err = fmt.Errorf("token cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.accessTokens[token.Value]
	s.accessTokens[token.Value] = token
	if !existed {
		s.accessTokensCountAtomic.Add(1)
	}

	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(token.Value, tokenIDLogLength),
		"client_id", token.ClientID)

	return nil
}

// DeleteAccessToken removes an access token
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "delete_access_token", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accessTokens[token]; ok {
		delete(s.accessTokens, token)
		s.accessTokensCountAtomic.Add(-1)
	}

	return nil
}

// ============================================================
// Refresh tokens
// ============================================================

// GetRefreshToken retrieves a refresh token without consuming it
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "get_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_refresh_token", err, startTime)
	}()

	if token == "" {
		err = fmt.Errorf("token cannot be empty")
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.refreshTokens[token]
	if !ok || s.expired(record.ExpiresAt) {
		err = fmt.Errorf("refresh token %s: %w", util.SafeTruncate(token, tokenIDLogLength), storage.ErrNotFound)
		return nil, err
	}

	return record, nil
}

// SetRefreshToken stores a refresh token
func (s *Store) SetRefreshToken(ctx context.Context, token *storage.Token) error {
	ctx, span := s.startStorageSpan(ctx, "set_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "set_refresh_token", err, startTime)
	}()

	if token == nil || token.Value == "" {
		err = fmt.Errorf("token cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.refreshTokens[token.Value]
	s.refreshTokens[token.Value] = token
	if !existed {
		s.refreshTokensCountAtomic.Add(1)
	}

	s.logger.Debug("Saved refresh token",
		"token_prefix", util.SafeTruncate(token.Value, tokenIDLogLength),
		"client_id", token.ClientID)

	return nil
}

// DeleteRefreshToken removes a refresh token
func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "delete_refresh_token", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[token]; ok {
		delete(s.refreshTokens, token)
		s.refreshTokensCountAtomic.Add(-1)
	}

	return nil
}

// ConsumeRefreshToken atomically fetches and deletes a refresh token.
// The write lock is held across the fetch and the delete, so of two
// concurrent redemption attempts exactly one succeeds; the other observes
// storage.ErrNotFound.
func (s *Store) ConsumeRefreshToken(ctx context.Context, token string) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "consume_refresh_token", err, startTime)
	}()

	if token == "" {
		err = fmt.Errorf("token cannot be empty")
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.refreshTokens[token]
	if !ok || s.expired(record.ExpiresAt) {
		err = fmt.Errorf("refresh token %s: %w", util.SafeTruncate(token, tokenIDLogLength), storage.ErrNotFound)
		return nil, err
	}

	delete(s.refreshTokens, token)
	s.refreshTokensCountAtomic.Add(-1)

	s.logger.Debug("Consumed refresh token",
		"token_prefix", util.SafeTruncate(token, tokenIDLogLength),
		"client_id", record.ClientID)

	return record, nil
}

// ============================================================
// Refresh token reuse records
// ============================================================

// SetRefreshTokenReuse records that a refresh token has been rotated
func (s *Store) SetRefreshTokenReuse(ctx context.Context, reuse *storage.RefreshTokenReuse) error {
	ctx, span := s.startStorageSpan(ctx, "set_refresh_token_reuse")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "set_refresh_token_reuse", err, startTime)
	}()

	if reuse == nil || reuse.OldRefreshToken == "" {
		err = fmt.Errorf("reuse record cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.reuseRecords[reuse.OldRefreshToken]
	s.reuseRecords[reuse.OldRefreshToken] = reuse
	if !existed {
		s.reuseRecordsCountAtomic.Add(1)
	}

	return nil
}

// GetRefreshTokenReuse retrieves the reuse record for a rotated refresh token
func (s *Store) GetRefreshTokenReuse(ctx context.Context, oldToken string) (*storage.RefreshTokenReuse, error) {
	ctx, span := s.startStorageSpan(ctx, "get_refresh_token_reuse")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_refresh_token_reuse", err, startTime)
	}()

	if oldToken == "" {
		err = fmt.Errorf("token cannot be empty")
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.reuseRecords[oldToken]
	if !ok || s.expired(record.ExpiresAt) {
		err = fmt.Errorf("reuse record %s: %w", util.SafeTruncate(oldToken, tokenIDLogLength), storage.ErrNotFound)
		return nil, err
	}

	return record, nil
}

// ============================================================
// Clients
// ============================================================

// GetClient retrieves a registered client
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	if clientID == "" {
		err = fmt.Errorf("clientID cannot be empty")
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = fmt.Errorf("client %s: %w", clientID, storage.ErrNotFound)
		return nil, err
	}

	return client, nil
}

// SetClient stores a registered client
func (s *Store) SetClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "set_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "set_client", err, startTime)
	}()

	if client == nil || client.ClientID == "" {
		err = fmt.Errorf("client ID cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.clients[client.ClientID]
	s.clients[client.ClientID] = client
	if !existed {
		s.clientsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)

	return nil
}

// ============================================================
// Cleanup
// ============================================================

// Cleanup removes expired codes, tokens, and reuse records and returns the
// number of entries removed. Registered clients are never swept.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	ctx, span := s.startStorageSpan(ctx, "cleanup")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "cleanup", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for code, record := range s.codes {
		if s.expired(record.ExpiresAt) {
			delete(s.codes, code)
			s.codesCountAtomic.Add(-1)
			removed++
		}
	}

	for value, record := range s.accessTokens {
		if s.expired(record.ExpiresAt) {
			delete(s.accessTokens, value)
			s.accessTokensCountAtomic.Add(-1)
			removed++
		}
	}

	for value, record := range s.refreshTokens {
		if s.expired(record.ExpiresAt) {
			delete(s.refreshTokens, value)
			s.refreshTokensCountAtomic.Add(-1)
			removed++
		}
	}

	for value, record := range s.reuseRecords {
		if s.expired(record.ExpiresAt) {
			delete(s.reuseRecords, value)
			s.reuseRecordsCountAtomic.Add(-1)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Cleaned up expired entries", "removed", removed)
	}

	return removed, nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			if _, err := s.Cleanup(context.Background()); err != nil {
				s.logger.Warn("Background cleanup failed", "error", err)
			}
		}
	}
}

// expired reports whether a deadline has passed according to the store's
// time source, with the standard clock skew grace period. Zero deadlines
// never expire. Caller must hold at least a read lock.
func (s *Store) expired(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return security.IsExpiredAt(expiresAt, s.now(), security.DefaultClockSkewGracePeriod)
}

// ============================================================
// Instrumentation helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else {
		if span != nil {
			span.SetStatus(codes.Ok, "")
		}
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}

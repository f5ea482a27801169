package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the gateway
type Metrics struct {
	// Credential Flow Metrics
	CodeExchanged    metric.Int64Counter
	TokenRefreshed   metric.Int64Counter
	TokenRevoked     metric.Int64Counter
	ClientRegistered metric.Int64Counter

	// Security Metrics
	RateLimitExceeded    metric.Int64Counter
	PKCEValidationFailed metric.Int64Counter
	TokenReuseDetected   metric.Int64Counter
	PathEscapeBlocked    metric.Int64Counter
	AuditEventsTotal     metric.Int64Counter

	// Encryption Metrics
	EncryptionOperationsTotal metric.Int64Counter
	EncryptionDuration        metric.Float64Histogram

	// Storage Metrics
	StorageOperationTotal     metric.Int64Counter
	StorageOperationDuration  metric.Float64Histogram
	StorageCodesCount         metric.Int64ObservableGauge
	StorageAccessTokensCount  metric.Int64ObservableGauge
	StorageRefreshTokensCount metric.Int64ObservableGauge
	StorageReuseRecordsCount  metric.Int64ObservableGauge
	StorageClientsCount       metric.Int64ObservableGauge

	// Session Metrics
	AliasMinted     metric.Int64Counter
	SessionAdopted  metric.Int64Counter
	SessionConflict metric.Int64Counter

	// Filesystem Metrics
	FSOperationTotal    metric.Int64Counter
	FSOperationDuration metric.Float64Histogram
	GlobTruncated       metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	// Credential Flow Metrics
	var err error
	m.CodeExchanged, err = inst.gatewayMeter.Int64Counter(
		"fsgate.code.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.exchanged counter: %w", err)
	}

	m.TokenRefreshed, err = inst.gatewayMeter.Int64Counter(
		"fsgate.token.refreshed",
		metric.WithDescription("Number of tokens refreshed"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.refreshed counter: %w", err)
	}

	m.TokenRevoked, err = inst.gatewayMeter.Int64Counter(
		"fsgate.token.revoked",
		metric.WithDescription("Number of tokens revoked"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.revoked counter: %w", err)
	}

	m.ClientRegistered, err = inst.gatewayMeter.Int64Counter(
		"fsgate.client.registered",
		metric.WithDescription("Number of clients registered"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client.registered counter: %w", err)
	}

	// Security Metrics
	m.RateLimitExceeded, err = inst.securityMeter.Int64Counter(
		"fsgate.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.PKCEValidationFailed, err = inst.securityMeter.Int64Counter(
		"fsgate.pkce.validation_failed",
		metric.WithDescription("Number of PKCE validation failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pkce.validation_failed counter: %w", err)
	}

	m.TokenReuseDetected, err = inst.securityMeter.Int64Counter(
		"fsgate.token.reuse_detected",
		metric.WithDescription("Number of refresh token reuse attempts detected"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.reuse_detected counter: %w", err)
	}

	m.PathEscapeBlocked, err = inst.securityMeter.Int64Counter(
		"fsgate.path.escape_blocked",
		metric.WithDescription("Number of path traversal attempts blocked"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create path.escape_blocked counter: %w", err)
	}

	m.AuditEventsTotal, err = inst.securityMeter.Int64Counter(
		"fsgate.audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	// Encryption Metrics
	m.EncryptionOperationsTotal, err = inst.securityMeter.Int64Counter(
		"fsgate.encryption.operations.total",
		metric.WithDescription("Total number of encryption/decryption operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption.operations.total counter: %w", err)
	}

	m.EncryptionDuration, err = inst.securityMeter.Float64Histogram(
		"fsgate.encryption.duration",
		metric.WithDescription("Encryption/decryption operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption.duration histogram: %w", err)
	}

	// Storage Metrics
	m.StorageOperationTotal, err = inst.storageMeter.Int64Counter(
		"fsgate.storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = inst.storageMeter.Float64Histogram(
		"fsgate.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StorageCodesCount, err = inst.storageMeter.Int64ObservableGauge(
		"fsgate.storage.codes.count",
		metric.WithDescription("Current number of stored authorization codes"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.codes.count gauge: %w", err)
	}

	m.StorageAccessTokensCount, err = inst.storageMeter.Int64ObservableGauge(
		"fsgate.storage.access_tokens.count",
		metric.WithDescription("Current number of stored access tokens"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.access_tokens.count gauge: %w", err)
	}

	m.StorageRefreshTokensCount, err = inst.storageMeter.Int64ObservableGauge(
		"fsgate.storage.refresh_tokens.count",
		metric.WithDescription("Current number of stored refresh tokens"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.refresh_tokens.count gauge: %w", err)
	}

	m.StorageReuseRecordsCount, err = inst.storageMeter.Int64ObservableGauge(
		"fsgate.storage.reuse_records.count",
		metric.WithDescription("Current number of stored refresh token reuse records"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.reuse_records.count gauge: %w", err)
	}

	m.StorageClientsCount, err = inst.storageMeter.Int64ObservableGauge(
		"fsgate.storage.clients.count",
		metric.WithDescription("Current number of registered clients"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.clients.count gauge: %w", err)
	}

	// Session Metrics
	m.AliasMinted, err = inst.sessionMeter.Int64Counter(
		"fsgate.session.alias_minted",
		metric.WithDescription("Number of session aliases minted"),
		metric.WithUnit("{alias}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.alias_minted counter: %w", err)
	}

	m.SessionAdopted, err = inst.sessionMeter.Int64Counter(
		"fsgate.session.adopted",
		metric.WithDescription("Number of sessions adopted from dead owners"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.adopted counter: %w", err)
	}

	m.SessionConflict, err = inst.sessionMeter.Int64Counter(
		"fsgate.session.conflict",
		metric.WithDescription("Number of session ownership conflicts"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.conflict counter: %w", err)
	}

	// Filesystem Metrics
	m.FSOperationTotal, err = inst.vfsMeter.Int64Counter(
		"fsgate.fs.operation.total",
		metric.WithDescription("Total number of filesystem operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fs.operation.total counter: %w", err)
	}

	m.FSOperationDuration, err = inst.vfsMeter.Float64Histogram(
		"fsgate.fs.operation.duration",
		metric.WithDescription("Filesystem operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fs.operation.duration histogram: %w", err)
	}

	m.GlobTruncated, err = inst.vfsMeter.Int64Counter(
		"fsgate.fs.glob.truncated",
		metric.WithDescription("Number of glob searches truncated at the result limit"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fs.glob.truncated counter: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordCodeExchange records an authorization code exchange
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID, pkceMethod string) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("pkce_method", pkceMethod),
	))
}

// RecordTokenRefresh records a token refresh operation
func (m *Metrics) RecordTokenRefresh(ctx context.Context, clientID string, rotated bool) {
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("rotated", rotated),
	))
}

// RecordTokenRevocation records a token revocation
func (m *Metrics) RecordTokenRevocation(ctx context.Context, clientID string) {
	m.TokenRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordClientRegistration records a client registration
func (m *Metrics) RecordClientRegistration(ctx context.Context, clientType string) {
	m.ClientRegistered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_type", clientType),
	))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter_type", limiterType),
	))
}

// RecordPKCEValidationFailed records a PKCE validation failure
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, method string) {
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
	))
}

// RecordTokenReuseDetected records a refresh token reuse attempt
func (m *Metrics) RecordTokenReuseDetected(ctx context.Context) {
	m.TokenReuseDetected.Add(ctx, 1)
}

// RecordPathEscapeBlocked records a blocked path traversal attempt
func (m *Metrics) RecordPathEscapeBlocked(ctx context.Context) {
	m.PathEscapeBlocked.Add(ctx, 1)
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordEncryptionOperation records an encryption/decryption operation
func (m *Metrics) RecordEncryptionOperation(ctx context.Context, operation string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
	}

	m.EncryptionOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.EncryptionDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordAliasMinted records a session alias mint
func (m *Metrics) RecordAliasMinted(ctx context.Context, kind string) {
	m.AliasMinted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordSessionAdopted records a session ownership adoption
func (m *Metrics) RecordSessionAdopted(ctx context.Context) {
	m.SessionAdopted.Add(ctx, 1)
}

// RecordSessionConflict records a session ownership conflict
func (m *Metrics) RecordSessionConflict(ctx context.Context) {
	m.SessionConflict.Add(ctx, 1)
}

// RecordFSOperation records a filesystem operation against a backend
func (m *Metrics) RecordFSOperation(ctx context.Context, backend, operation, result string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.FSOperationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.FSOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
	))
}

// RecordGlobTruncated records a glob search truncated at the result limit
func (m *Metrics) RecordGlobTruncated(ctx context.Context) {
	m.GlobTruncated.Add(ctx, 1)
}

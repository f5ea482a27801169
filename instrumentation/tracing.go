package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
//
// SECURITY WARNING: Never log actual sensitive values (access tokens, refresh
// tokens, authorization codes, client secrets) in traces or metrics. Only log
// metadata such as token types, expiry times, and validation results.
const (
	// Credential flow attributes - SAFE to use for metadata only
	AttrClientID    = "auth.client_id"    // Client identifier (non-secret)
	AttrSubject     = "auth.subject"      // Subject identifier (non-secret)
	AttrScope       = "auth.scope"        // Requested scopes
	AttrPKCEMethod  = "auth.pkce.method"  // PKCE method used (S256, plain)
	AttrTokenReuse  = "auth.token.reuse"  //nolint:gosec // Whether token reuse was detected (boolean)
	AttrGrantType   = "auth.grant_type"   // Grant type
	AttrError       = "auth.error"        // Error code
	AttrErrorDetail = "auth.error_detail" // Error description

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	// Session attributes
	AttrSessionAlias    = "session.alias"
	AttrSessionKind     = "session.kind"
	AttrSessionOwnerPID = "session.owner_pid"
	AttrSessionDecision = "session.decision"

	// Filesystem attributes
	AttrFSBackend   = "fs.backend"
	AttrFSOperation = "fs.operation"
	AttrFSPath      = "fs.path"
	AttrFSPattern   = "fs.pattern"
	AttrFSTruncated = "fs.truncated"

	// Security attributes
	AttrRateLimiterType = "security.rate_limiter.type"
	AttrAuditEventType  = "security.audit.event_type"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddFlowAttributes adds common credential flow attributes to a span (nil-safe)
func AddFlowAttributes(span trace.Span, clientID, subject, scope string) {
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	if subject != "" {
		SetSpanAttributes(span, attribute.String(AttrSubject, subject))
	}
	if scope != "" {
		SetSpanAttributes(span, attribute.String(AttrScope, scope))
	}
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddSessionAttributes adds session attributes to a span (nil-safe)
func AddSessionAttributes(span trace.Span, alias, kind string) {
	SetSpanAttributes(span,
		attribute.String(AttrSessionAlias, alias),
		attribute.String(AttrSessionKind, kind),
	)
}

// AddFSAttributes adds filesystem operation attributes to a span (nil-safe)
func AddFSAttributes(span trace.Span, backend, operation string) {
	SetSpanAttributes(span,
		attribute.String(AttrFSBackend, backend),
		attribute.String(AttrFSOperation, operation),
	)
}

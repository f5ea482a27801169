package security

// Event type constants for security audit logging. Using constants keeps
// event names consistent across the codebase and greppable in log storage.
const (
	// Credential lifecycle events

	// EventTokenIssued is logged when an access/refresh token pair is issued
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token is redeemed and rotated
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when tokens are revoked
	EventTokenRevoked = "token_revoked"

	// EventCodeConsumed is logged when an authorization code is exchanged
	EventCodeConsumed = "authorization_code_consumed"

	// Client registration events

	// EventClientRegistered is logged when a new client is registered dynamically
	EventClientRegistered = "client_registered"

	// EventClientRegistrationRateLimited is logged when registration is rejected by the rate limiter
	EventClientRegistrationRateLimited = "client_registration_rate_limited"

	// Security violation events

	// EventAuthFailure is logged when bearer or client authentication fails
	EventAuthFailure = "auth_failure"

	// EventRefreshReuseDetected is logged when an already-rotated refresh
	// token is presented again (credential theft indicator)
	EventRefreshReuseDetected = "refresh_token_reuse_detected"

	// EventPathEscapeBlocked is logged when a path resolution attempts to
	// leave the jail root
	EventPathEscapeBlocked = "path_escape_blocked"

	// EventInvalidPKCE is logged when PKCE verification fails
	EventInvalidPKCE = "invalid_pkce"

	// Session events

	// EventSessionAdopted is logged when a session owned by a dead process
	// is adopted by the caller
	EventSessionAdopted = "session_adopted"

	// EventSessionConflict is logged when a session is owned by a live
	// other process and the caller is refused
	EventSessionConflict = "session_conflict"
)

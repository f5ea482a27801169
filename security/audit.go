package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. Subjects are
// hashed before logging; token values never reach the auditor at all, only
// truncated prefixes chosen by the caller.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Subject   string
	ClientID  string
	SessionID string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"subject_hash", hashForLogging(event.Subject),
		"client_id", event.ClientID,
		"session_id", event.SessionID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogTokenIssued logs issuance of an access/refresh token pair
func (a *Auditor) LogTokenIssued(subject, clientID, scope string) {
	a.LogEvent(Event{
		Type:     EventTokenIssued,
		Subject:  subject,
		ClientID: clientID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenRefreshed logs a successful refresh-token rotation
func (a *Auditor) LogTokenRefreshed(subject, clientID string) {
	a.LogEvent(Event{
		Type:     EventTokenRefreshed,
		Subject:  subject,
		ClientID: clientID,
		Details: map[string]any{
			"rotated": true,
		},
	})
}

// LogRefreshReuse logs detection of an already-rotated refresh token being
// replayed. This is the credential-theft signal; callers revoke the token
// family in response, and the event must never be downgraded or dropped.
func (a *Auditor) LogRefreshReuse(subject, clientID, tokenPrefix string) {
	a.LogEvent(Event{
		Type:     EventRefreshReuseDetected,
		Subject:  subject,
		ClientID: clientID,
		Details: map[string]any{
			"severity":     "critical",
			"token_prefix": tokenPrefix,
			"action":       "token_family_revoked",
		},
	})
}

// LogPathEscape logs a blocked attempt to resolve a path outside the jail
func (a *Auditor) LogPathEscape(sessionID, input string) {
	a.LogEvent(Event{
		Type:      EventPathEscapeBlocked,
		SessionID: sessionID,
		Details: map[string]any{
			"severity": "critical",
			"input":    input,
		},
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(subject, clientID, reason string) {
	a.LogEvent(Event{
		Type:     EventAuthFailure,
		Subject:  subject,
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogClientRegistered logs a dynamic client registration
func (a *Auditor) LogClientRegistered(clientID, clientName string) {
	a.LogEvent(Event{
		Type:     EventClientRegistered,
		ClientID: clientID,
		Details: map[string]any{
			"client_name": clientName,
		},
	})
}

// LogSessionAdopted logs takeover of a session whose owner process is dead
func (a *Auditor) LogSessionAdopted(sessionID string, oldPID, newPID int) {
	a.LogEvent(Event{
		Type:      EventSessionAdopted,
		SessionID: sessionID,
		Details: map[string]any{
			"old_pid": oldPID,
			"new_pid": newPID,
		},
	})
}

// LogSessionConflict logs refusal to act on a session owned by a live
// other process
func (a *Auditor) LogSessionConflict(sessionID string, ownerPID, callerPID int) {
	a.LogEvent(Event{
		Type:      EventSessionConflict,
		SessionID: sessionID,
		Details: map[string]any{
			"owner_pid":  ownerPID,
			"caller_pid": callerPID,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}

package security

import "time"

const (
	// DefaultClockSkewGracePeriod is the grace period applied to expiry
	// checks so minor time drift between the gateway, its clients, and the
	// persistence backend does not produce false expirations. 5 seconds
	// covers typical NTP drift; credentials remain usable at most that
	// long past their true expiry.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsExpired checks whether a credential with the given expiry is expired,
// applying the default clock skew grace period. A zero time means no expiry.
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredAt(expiresAt, time.Now(), DefaultClockSkewGracePeriod)
}

// IsExpiredAt checks expiry against an explicit clock and grace period.
// The explicit clock keeps the check deterministic under an injected time
// source (alias registry, tests).
func IsExpiredAt(expiresAt, now time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt.Add(gracePeriod))
}

// IsExpiringSoon reports whether the expiry falls within the threshold.
func IsExpiringSoon(expiresAt time.Time, threshold time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().Add(threshold).After(expiresAt)
}

// Package security provides the trust-layer security features of the
// gateway: audit logging, registration rate limiting, credential encryption
// at rest, and clock-skew-tolerant expiry checks.
package security

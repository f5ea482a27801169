package fsgate

import (
	"log/slog"
	"time"

	"github.com/giantswarm/mcp-fsgate/instrumentation"
	"github.com/giantswarm/mcp-fsgate/storage"
)

// Default credential lifetimes
const (
	DefaultCodeTTL         = 10 * time.Minute
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 90 * 24 * time.Hour
)

// Config holds the gateway configuration
type Config struct {
	// Store is the credential store (required). The gateway calls Init and
	// Stop on it.
	Store storage.CredentialStore

	// SessionDir is where cross-process ownership records live (required)
	SessionDir string

	// JailRoot is the absolute directory the local backend serves (required
	// when the local backend is enabled)
	JailRoot string

	// TTLs for issued credentials. Zero selects the defaults above.
	CodeTTL         time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// AliasTTL bounds minted aliases. Zero selects session.DefaultAliasTTL.
	AliasTTL time.Duration

	// Rate limiting for dynamic client registration
	RateLimit RateLimitConfig

	// Security settings
	Security SecurityConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// Instrumentation provides OpenTelemetry metrics and tracing (optional)
	Instrumentation *instrumentation.Instrumentation
}

// RateLimitConfig holds registration rate limiting configuration
type RateLimitConfig struct {
	// Rate is registrations per second allowed per IP. Zero disables limiting.
	Rate int

	// Burst is the maximum burst size allowed per IP
	Burst int

	// MaxEntries bounds the limiter LRU. Zero selects the default.
	MaxEntries int
}

// SecurityConfig holds gateway security settings (secure by default)
type SecurityConfig struct {
	// EnableAuditLogging enables security audit logging.
	// Logs credential events, session arbitration, and violations
	// (sensitive data hashed).
	EnableAuditLogging bool

	// EncryptionKey is the AES-256 key (32 bytes) for credential encryption
	// at rest in durable stores. Nil disables encryption.
	EncryptionKey []byte
}

// applySecureDefaults fills in zero-valued lifetimes
func (c *Config) applySecureDefaults() {
	if c.CodeTTL <= 0 {
		c.CodeTTL = DefaultCodeTTL
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

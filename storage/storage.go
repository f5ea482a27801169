// Package storage defines the credential persistence contract for the
// filesystem gateway: authorization codes, access and refresh tokens,
// refresh-token-reuse records, and dynamically registered clients.
// Implementations include an in-memory store and an embedded-database store.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Sentinel errors returned by all CredentialStore implementations.
// Callers must use errors.Is: a missing or expired row is ErrNotFound,
// a failing persistence backend is ErrUnavailable. The two must never be
// conflated - ErrNotFound lets the caller start a fresh flow, ErrUnavailable
// tells it to retry.
var (
	// ErrNotFound indicates the requested code, token, reuse record, or
	// client does not exist or has expired.
	ErrNotFound = errors.New("storage: not found")

	// ErrUnavailable indicates the persistence backend failed. Operations
	// returning it guarantee nothing was partially written.
	ErrUnavailable = errors.New("storage: unavailable")
)

// AuthorizationCode is a single-use code issued during the authorization
// flow. It is consumed exactly once during token exchange and deleted on
// consumption or expiry.
type AuthorizationCode struct {
	Code          string         `json:"code"`
	ClientID      string         `json:"client_id"`
	RedirectURI   string         `json:"redirect_uri"`
	CodeChallenge string         `json:"code_challenge,omitempty"`
	Scopes        []string       `json:"scopes,omitempty"`
	Resource      string         `json:"resource,omitempty"`
	Subject       string         `json:"subject"`
	Extra         map[string]any `json:"extra,omitempty"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

// Token is the shared record shape for access and refresh tokens.
// Access tokens are bearer-checked on every request; refresh tokens are
// single-use and rotate on exchange.
type Token struct {
	Value     string         `json:"value"`
	ClientID  string         `json:"client_id"`
	Scopes    []string       `json:"scopes,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Subject   string         `json:"subject"`
	Extra     map[string]any `json:"extra,omitempty"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// TokenResponse is the token-endpoint response recorded alongside a rotated
// refresh token so replay of the old value can be detected.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// RefreshTokenReuse records that OldRefreshToken was redeemed and superseded
// by Tokens. It is written before the old token row is deleted and retained
// past that deletion: a second redemption of the same already-rotated value
// is answered from this record and treated as credential theft, not as an
// ordinary not-found.
type RefreshTokenReuse struct {
	OldRefreshToken string         `json:"old_refresh_token"`
	ClientID        string         `json:"client_id"`
	Resource        string         `json:"resource,omitempty"`
	ScopeKey        string         `json:"scope_key"`
	Tokens          *TokenResponse `json:"tokens"`
	ExpiresAt       time.Time      `json:"expires_at"`
}

// Client is a dynamically registered client (RFC 7591). It is immutable
// once issued except for secret rotation and must survive process restarts.
// The secret is stored as given; implementations may additionally accept a
// bcrypt hash in ClientSecret for pre-provisioned clients.
type Client struct {
	ClientID                string    `json:"client_id"`
	ClientSecret            string    `json:"client_secret,omitempty"`
	ClientName              string    `json:"client_name,omitempty"`
	RedirectURIs            []string  `json:"redirect_uris,omitempty"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string  `json:"grant_types,omitempty"`
	ResponseTypes           []string  `json:"response_types,omitempty"`
	ClientIDIssuedAt        time.Time `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt   time.Time `json:"client_secret_expires_at,omitempty"`
}

// CredentialStore persists the gateway's trust-layer state. All methods
// accept context.Context for cancellation; an implementation must not leave
// partial writes behind when the context is cancelled mid-operation.
//
// Get methods on a missing or expired key return ErrNotFound, never a bare
// nil. Set methods are idempotent per key.
type CredentialStore interface {
	// Init prepares the backing store (opens files, creates buckets).
	Init(ctx context.Context) error

	// Stop releases resources held by the store.
	Stop() error

	GetCode(ctx context.Context, code string) (*AuthorizationCode, error)
	SetCode(ctx context.Context, code *AuthorizationCode) error
	DeleteCode(ctx context.Context, code string) error

	GetAccessToken(ctx context.Context, token string) (*Token, error)
	SetAccessToken(ctx context.Context, token *Token) error
	DeleteAccessToken(ctx context.Context, token string) error

	GetRefreshToken(ctx context.Context, token string) (*Token, error)
	SetRefreshToken(ctx context.Context, token *Token) error
	DeleteRefreshToken(ctx context.Context, token string) error

	// ConsumeRefreshToken atomically fetches and deletes a refresh token.
	// Linearizable per token: of two concurrent redemption attempts exactly
	// one succeeds, the other observes ErrNotFound.
	ConsumeRefreshToken(ctx context.Context, token string) (*Token, error)

	SetRefreshTokenReuse(ctx context.Context, reuse *RefreshTokenReuse) error
	GetRefreshTokenReuse(ctx context.Context, oldToken string) (*RefreshTokenReuse, error)

	GetClient(ctx context.Context, clientID string) (*Client, error)
	SetClient(ctx context.Context, client *Client) error

	// Cleanup sweeps codes, access tokens, refresh tokens, and reuse
	// records whose ExpiresAt has passed and returns the count removed.
	// Safe to call concurrently with normal traffic.
	Cleanup(ctx context.Context) (int, error)
}

// ScopeKey canonicalizes a scope list for reuse-record keying.
func ScopeKey(scopes []string) string {
	return strings.Join(scopes, " ")
}

package fsgate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-fsgate/storage"
	"github.com/giantswarm/mcp-fsgate/storage/memory"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := New(context.Background(), Config{
		Store:      memory.New(),
		SessionDir: t.TempDir(),
		JailRoot:   t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

// registerAndAuthorize registers a client and issues a code for it
func registerAndAuthorize(t *testing.T, g *Gateway, challenge string) (clientID, code string) {
	t.Helper()
	ctx := context.Background()

	reg, err := g.RegisterClient(ctx, &ClientRegistrationRequest{
		ClientName:   "test-app",
		RedirectURIs: []string{"http://localhost:9999/cb"},
	}, "127.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, reg.ClientID)
	require.NotEmpty(t, reg.ClientSecret)

	authCode, err := g.IssueCode(ctx, reg.ClientID, "subject-1",
		"http://localhost:9999/cb", challenge, []string{"fs:read", "fs:write"})
	require.NoError(t, err)

	return reg.ClientID, authCode.Code
}

func TestExchangeCodeHappyPath(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	clientID, code := registerAndAuthorize(t, g, "")

	resp, err := g.ExchangeCode(ctx, &ExchangeRequest{
		Code:        code,
		ClientID:    clientID,
		RedirectURI: "http://localhost:9999/cb",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)

	token, err := g.ValidateBearer(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "subject-1", token.Subject)
	assert.Equal(t, clientID, token.ClientID)
}

func TestExchangeCodeIsSingleUse(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	clientID, code := registerAndAuthorize(t, g, "")

	req := &ExchangeRequest{Code: code, ClientID: clientID, RedirectURI: "http://localhost:9999/cb"}
	_, err := g.ExchangeCode(ctx, req)
	require.NoError(t, err)

	_, err = g.ExchangeCode(ctx, req)
	require.Error(t, err)
	assert.Equal(t, ErrorCodeNotFound, MapError(err).Code)
}

func TestExchangeCodePKCE(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)
	clientID, code := registerAndAuthorize(t, g, challenge)

	// Wrong verifier is a security violation, not a not-found
	_, err := g.ExchangeCode(ctx, &ExchangeRequest{
		Code:         code,
		ClientID:     clientID,
		RedirectURI:  "http://localhost:9999/cb",
		CodeVerifier: oauth2.GenerateVerifier(),
	})
	require.Error(t, err)
	assert.Equal(t, ErrorCodeSecurityViolation, MapError(err).Code)

	// The failed attempt did not burn the code
	resp, err := g.ExchangeCode(ctx, &ExchangeRequest{
		Code:         code,
		ClientID:     clientID,
		RedirectURI:  "http://localhost:9999/cb",
		CodeVerifier: verifier,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestExchangeCodeClientMismatch(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	_, code := registerAndAuthorize(t, g, "")

	_, err := g.ExchangeCode(ctx, &ExchangeRequest{
		Code:        code,
		ClientID:    "someone-else",
		RedirectURI: "http://localhost:9999/cb",
	})
	require.Error(t, err)
	assert.Equal(t, ErrorCodeInvalidInput, MapError(err).Code)
}

func TestRefreshRotation(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	clientID, code := registerAndAuthorize(t, g, "")
	first, err := g.ExchangeCode(ctx, &ExchangeRequest{
		Code: code, ClientID: clientID, RedirectURI: "http://localhost:9999/cb",
	})
	require.NoError(t, err)

	second, err := g.Refresh(ctx, &RefreshRequest{
		RefreshToken: first.RefreshToken,
		ClientID:     clientID,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	// The new refresh token works
	third, err := g.Refresh(ctx, &RefreshRequest{
		RefreshToken: second.RefreshToken,
		ClientID:     clientID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, third.AccessToken)
}

func TestRefreshReuseIsSecurityViolationAndRevokesFamily(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	clientID, code := registerAndAuthorize(t, g, "")
	first, err := g.ExchangeCode(ctx, &ExchangeRequest{
		Code: code, ClientID: clientID, RedirectURI: "http://localhost:9999/cb",
	})
	require.NoError(t, err)

	second, err := g.Refresh(ctx, &RefreshRequest{
		RefreshToken: first.RefreshToken,
		ClientID:     clientID,
	})
	require.NoError(t, err)

	// Replaying the rotated value must not read as a plain not-found
	_, err = g.Refresh(ctx, &RefreshRequest{
		RefreshToken: first.RefreshToken,
		ClientID:     clientID,
	})
	require.Error(t, err)
	assert.Equal(t, ErrorCodeSecurityViolation, MapError(err).Code)

	// The successor pair issued at rotation is revoked
	_, err = g.ValidateBearer(ctx, second.AccessToken)
	require.Error(t, err)
	_, err = g.Refresh(ctx, &RefreshRequest{
		RefreshToken: second.RefreshToken,
		ClientID:     clientID,
	})
	require.Error(t, err)
}

func TestRefreshUnknownTokenIsNotFound(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.Refresh(context.Background(), &RefreshRequest{
		RefreshToken: "never-issued",
		ClientID:     "whoever",
	})
	require.Error(t, err)
	assert.Equal(t, ErrorCodeNotFound, MapError(err).Code)
}

func TestValidateBearer(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	_, err := g.ValidateBearer(ctx, "")
	require.Error(t, err)
	assert.Equal(t, ErrorCodeInvalidInput, MapError(err).Code)

	_, err = g.ValidateBearer(ctx, "unknown-token")
	require.Error(t, err)
	assert.Equal(t, ErrorCodeNotFound, MapError(err).Code)
}

func TestRegisterClientRateLimit(t *testing.T) {
	g, err := New(context.Background(), Config{
		Store:      memory.New(),
		SessionDir: t.TempDir(),
		RateLimit:  RateLimitConfig{Rate: 1, Burst: 2},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	ctx := context.Background()
	req := &ClientRegistrationRequest{ClientName: "burst-app"}

	_, err = g.RegisterClient(ctx, req, "10.0.0.1")
	require.NoError(t, err)
	_, err = g.RegisterClient(ctx, req, "10.0.0.1")
	require.NoError(t, err)

	_, err = g.RegisterClient(ctx, req, "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, ErrorCodeRateLimited, MapError(err).Code)

	// A different IP is unaffected
	_, err = g.RegisterClient(ctx, req, "10.0.0.2")
	assert.NoError(t, err)
}

func TestRegisterPublicClientHasNoSecret(t *testing.T) {
	g := newTestGateway(t)

	reg, err := g.RegisterClient(context.Background(), &ClientRegistrationRequest{
		ClientName:              "spa-app",
		TokenEndpointAuthMethod: "none",
	}, "127.0.0.1")
	require.NoError(t, err)
	assert.Empty(t, reg.ClientSecret)
}

func TestValidateClientSecret(t *testing.T) {
	plain := &storage.Client{ClientID: "c1", ClientSecret: "plain-secret"}
	assert.NoError(t, ValidateClientSecret(plain, "plain-secret"))
	assert.Error(t, ValidateClientSecret(plain, "wrong"))

	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	hashed := &storage.Client{ClientID: "c2", ClientSecret: string(hash)}
	assert.NoError(t, ValidateClientSecret(hashed, "hashed-secret"))
	assert.Error(t, ValidateClientSecret(hashed, "wrong"))

	public := &storage.Client{ClientID: "c3"}
	assert.NoError(t, ValidateClientSecret(public, ""))
}

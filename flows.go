package fsgate

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-fsgate/internal/util"
	"github.com/giantswarm/mcp-fsgate/security"
	"github.com/giantswarm/mcp-fsgate/storage"
)

const tokenLogLength = 8

// RegisterClient handles dynamic client registration (RFC 7591). Clients
// are persisted durably; a restart must not invalidate issued client ids.
// clientIP keys the registration rate limiter.
func (g *Gateway) RegisterClient(ctx context.Context, req *ClientRegistrationRequest, clientIP string) (*ClientRegistrationResponse, error) {
	if req == nil {
		return nil, ErrInvalidInput("registration request is required")
	}

	if g.registrationLimiter != nil && !g.registrationLimiter.Allow(clientIP) {
		g.auditor.LogEvent(security.Event{
			Type:    security.EventClientRegistrationRateLimited,
			Details: map[string]any{"client_ip": clientIP},
		})
		if g.instrumentation != nil {
			g.instrumentation.Metrics().RecordRateLimitExceeded(ctx, "registration")
		}
		return nil, ErrRateLimited("client registration rate limit exceeded")
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = "client_secret_basic"
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code", "refresh_token"}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}

	client := &storage.Client{
		ClientID:                uuid.NewString(),
		ClientName:              req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		ClientIDIssuedAt:        time.Now(),
	}

	// Public clients get no secret
	if authMethod != "none" {
		client.ClientSecret = oauth2.GenerateVerifier()
	}

	if err := g.store.SetClient(ctx, client); err != nil {
		return nil, MapError(err)
	}

	g.auditor.LogClientRegistered(client.ClientID, client.ClientName)
	if g.instrumentation != nil {
		clientType := "confidential"
		if authMethod == "none" {
			clientType = "public"
		}
		g.instrumentation.Metrics().RecordClientRegistration(ctx, clientType)
	}

	g.logger.Info("Registered client",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
		"auth_method", authMethod)

	return &ClientRegistrationResponse{
		ClientID:                client.ClientID,
		ClientSecret:            client.ClientSecret,
		ClientIDIssuedAt:        client.ClientIDIssuedAt.Unix(),
		RedirectURIs:            client.RedirectURIs,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		ClientName:              client.ClientName,
		Scope:                   req.Scope,
	}, nil
}

// ValidateClientSecret checks a presented secret against the stored client.
// Stored bcrypt hashes (pre-provisioned clients) are compared with bcrypt;
// anything else in constant time.
func ValidateClientSecret(client *storage.Client, presented string) error {
	if client == nil {
		return fmt.Errorf("client is required")
	}
	if client.ClientSecret == "" {
		// Public client, nothing to check
		return nil
	}

	if strings.HasPrefix(client.ClientSecret, "$2") {
		if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecret), []byte(presented)); err != nil {
			return fmt.Errorf("client secret mismatch")
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(client.ClientSecret), []byte(presented)) != 1 {
		return fmt.Errorf("client secret mismatch")
	}
	return nil
}

// ExchangeCode redeems a single-use authorization code for an access and
// refresh token pair. The code is deleted before tokens are issued, so a
// replay can never mint a second pair.
func (g *Gateway) ExchangeCode(ctx context.Context, req *ExchangeRequest) (*storage.TokenResponse, error) {
	if req == nil || req.Code == "" {
		return nil, ErrInvalidInput("code is required")
	}

	code, err := g.store.GetCode(ctx, req.Code)
	if err != nil {
		return nil, MapError(err)
	}

	if code.ClientID != req.ClientID {
		g.auditor.LogAuthFailure(code.Subject, req.ClientID, "client_id mismatch on code exchange")
		return nil, ErrInvalidInput("code was issued to a different client")
	}
	if code.RedirectURI != "" && code.RedirectURI != req.RedirectURI {
		g.auditor.LogAuthFailure(code.Subject, req.ClientID, "redirect_uri mismatch on code exchange")
		return nil, ErrInvalidInput("redirect_uri does not match the authorization request")
	}

	if err := validatePKCE(code.CodeChallenge, req.CodeVerifier); err != nil {
		g.auditor.LogAuthFailure(code.Subject, req.ClientID, "PKCE validation failed")
		if g.instrumentation != nil {
			g.instrumentation.Metrics().RecordPKCEValidationFailed(ctx, "S256")
		}
		return nil, ErrSecurityViolation(err.Error()).WithCause(err)
	}

	// Burn the code before issuing anything
	if err := g.store.DeleteCode(ctx, req.Code); err != nil {
		return nil, MapError(err)
	}

	resp, err := g.issueTokens(ctx, code.ClientID, code.Subject, code.Scopes, code.Resource)
	if err != nil {
		return nil, err
	}

	g.auditor.LogTokenIssued(code.Subject, code.ClientID, storage.ScopeKey(code.Scopes))
	if g.instrumentation != nil {
		pkceMethod := "none"
		if code.CodeChallenge != "" {
			pkceMethod = "S256"
		}
		g.instrumentation.Metrics().RecordCodeExchange(ctx, code.ClientID, pkceMethod)
	}

	return resp, nil
}

// Refresh rotates a refresh token. The order of operations honors the
// no-partial-write rule: the new pair is durably stored and the reuse
// record written before the old row is consumed, so cancellation anywhere
// in between never strands the client without a valid token.
//
// Presenting an already-rotated value is answered from the reuse record:
// it is credential theft, not a plain not-found, and it revokes the
// recorded successor tokens.
func (g *Gateway) Refresh(ctx context.Context, req *RefreshRequest) (*storage.TokenResponse, error) {
	if req == nil || req.RefreshToken == "" {
		return nil, ErrInvalidInput("refresh_token is required")
	}

	if reuse, err := g.store.GetRefreshTokenReuse(ctx, req.RefreshToken); err == nil {
		return nil, g.handleRefreshReuse(ctx, req, reuse)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, MapError(err)
	}

	old, err := g.store.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, MapError(err)
	}
	if old.ClientID != req.ClientID {
		g.auditor.LogAuthFailure(old.Subject, req.ClientID, "client_id mismatch on refresh")
		return nil, ErrInvalidInput("refresh token was issued to a different client")
	}

	resp, err := g.issueTokens(ctx, old.ClientID, old.Subject, old.Scopes, old.Resource)
	if err != nil {
		return nil, err
	}

	reuse := &storage.RefreshTokenReuse{
		OldRefreshToken: req.RefreshToken,
		ClientID:        old.ClientID,
		Resource:        old.Resource,
		ScopeKey:        storage.ScopeKey(old.Scopes),
		Tokens:          resp,
		ExpiresAt:       time.Now().Add(g.config.RefreshTokenTTL),
	}
	if err := g.store.SetRefreshTokenReuse(ctx, reuse); err != nil {
		return nil, MapError(err)
	}

	// Linearization point. Losing a concurrent race means someone else
	// already rotated this value; treat our attempt as the replay.
	if _, err := g.store.ConsumeRefreshToken(ctx, req.RefreshToken); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			g.revokeTokenPair(ctx, resp)
			return nil, g.handleRefreshReuse(ctx, req, reuse)
		}
		return nil, MapError(err)
	}

	g.auditor.LogTokenRefreshed(old.Subject, old.ClientID)
	if g.instrumentation != nil {
		g.instrumentation.Metrics().RecordTokenRefresh(ctx, old.ClientID, true)
	}

	return resp, nil
}

// handleRefreshReuse revokes the successor tokens recorded at rotation and
// surfaces the replay as a security violation.
func (g *Gateway) handleRefreshReuse(ctx context.Context, req *RefreshRequest, reuse *storage.RefreshTokenReuse) error {
	g.revokeTokenPair(ctx, reuse.Tokens)

	g.auditor.LogRefreshReuse("", reuse.ClientID, util.SafeTruncate(req.RefreshToken, tokenLogLength))
	if g.instrumentation != nil {
		g.instrumentation.Metrics().RecordTokenReuseDetected(ctx)
	}

	g.logger.Warn("Refresh token reuse detected, revoking token family",
		"client_id", reuse.ClientID,
		"token_prefix", util.SafeTruncate(req.RefreshToken, tokenLogLength))

	return ErrSecurityViolation("refresh token has already been redeemed")
}

// revokeTokenPair best-effort deletes an issued access/refresh pair
func (g *Gateway) revokeTokenPair(ctx context.Context, tokens *storage.TokenResponse) {
	if tokens == nil {
		return
	}
	if tokens.AccessToken != "" {
		if err := g.store.DeleteAccessToken(ctx, tokens.AccessToken); err != nil {
			g.logger.Warn("Failed to revoke access token", "error", err)
		}
	}
	if tokens.RefreshToken != "" {
		if err := g.store.DeleteRefreshToken(ctx, tokens.RefreshToken); err != nil {
			g.logger.Warn("Failed to revoke refresh token", "error", err)
		}
	}
	if g.instrumentation != nil {
		g.instrumentation.Metrics().RecordTokenRevocation(ctx, "")
	}
}

// ValidateBearer resolves a bearer token to its access token record.
// Every inbound tool call passes through here first.
func (g *Gateway) ValidateBearer(ctx context.Context, bearer string) (*storage.Token, error) {
	bearer = strings.TrimPrefix(bearer, "Bearer ")
	if bearer == "" {
		return nil, ErrInvalidInput("bearer token is required")
	}

	token, err := g.store.GetAccessToken(ctx, bearer)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			g.auditor.LogAuthFailure("", "", "unknown or expired bearer token")
		}
		return nil, MapError(err)
	}
	return token, nil
}

// IssueCode mints and stores a single-use authorization code. The
// authorization UI that would normally drive this is out of scope; tests
// and embedding processes call it directly.
func (g *Gateway) IssueCode(ctx context.Context, clientID, subject, redirectURI, codeChallenge string, scopes []string) (*storage.AuthorizationCode, error) {
	if clientID == "" || subject == "" {
		return nil, ErrInvalidInput("client_id and subject are required")
	}
	if _, err := g.store.GetClient(ctx, clientID); err != nil {
		return nil, MapError(err)
	}

	code := &storage.AuthorizationCode{
		Code:          oauth2.GenerateVerifier(),
		ClientID:      clientID,
		RedirectURI:   redirectURI,
		CodeChallenge: codeChallenge,
		Scopes:        scopes,
		Subject:       subject,
		ExpiresAt:     time.Now().Add(g.config.CodeTTL),
	}
	if err := g.store.SetCode(ctx, code); err != nil {
		return nil, MapError(err)
	}
	return code, nil
}

// issueTokens mints and durably stores an access and refresh token pair
func (g *Gateway) issueTokens(ctx context.Context, clientID, subject string, scopes []string, resource string) (*storage.TokenResponse, error) {
	now := time.Now()

	access := &storage.Token{
		Value:     oauth2.GenerateVerifier(),
		ClientID:  clientID,
		Scopes:    scopes,
		Resource:  resource,
		Subject:   subject,
		ExpiresAt: now.Add(g.config.AccessTokenTTL),
	}
	refresh := &storage.Token{
		Value:     oauth2.GenerateVerifier(),
		ClientID:  clientID,
		Scopes:    scopes,
		Resource:  resource,
		Subject:   subject,
		ExpiresAt: now.Add(g.config.RefreshTokenTTL),
	}

	if err := g.store.SetAccessToken(ctx, access); err != nil {
		return nil, MapError(err)
	}
	if err := g.store.SetRefreshToken(ctx, refresh); err != nil {
		// Nothing references the freshly minted access token yet
		_ = g.store.DeleteAccessToken(ctx, access.Value)
		return nil, MapError(err)
	}

	return &storage.TokenResponse{
		AccessToken:  access.Value,
		TokenType:    "Bearer",
		ExpiresIn:    int64(g.config.AccessTokenTTL.Seconds()),
		RefreshToken: refresh.Value,
		Scope:        storage.ScopeKey(scopes),
	}, nil
}

// validatePKCE validates the PKCE code verifier against the challenge per
// RFC 7636. Only the S256 method is supported.
func validatePKCE(challenge, verifier string) error {
	if challenge == "" {
		// No PKCE required for this flow
		return nil
	}

	if verifier == "" {
		return fmt.Errorf("code_verifier is required when code_challenge is present")
	}

	// RFC 7636: code_verifier must be 43-128 characters
	if len(verifier) < 43 {
		return fmt.Errorf("code_verifier must be at least 43 characters (RFC 7636)")
	}
	if len(verifier) > 128 {
		return fmt.Errorf("code_verifier must be at most 128 characters (RFC 7636)")
	}

	// RFC 7636: code_verifier can only contain [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
	for _, ch := range verifier {
		if (ch < 'A' || ch > 'Z') && (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') &&
			ch != '-' && ch != '.' && ch != '_' && ch != '~' {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}

	hash := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(hash[:])

	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}
	return nil
}

// Package testutil provides testing utilities shared by the gateway's test
// suites: a controllable clock and credential fixtures.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/giantswarm/mcp-fsgate/storage"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.now = t
}

// GenerateRandomString creates a random URL-safe string of n bytes entropy
func GenerateRandomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// GenerateTestToken creates an access-token record expiring in one hour
func GenerateTestToken() *storage.Token {
	return &storage.Token{
		Value:     GenerateRandomString(32),
		ClientID:  "test-client",
		Scopes:    []string{"fs:read", "fs:write"},
		Subject:   "test-subject",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// GenerateTestRefreshToken creates a refresh-token record expiring in 30 days
func GenerateTestRefreshToken() *storage.Token {
	return &storage.Token{
		Value:     GenerateRandomString(32),
		ClientID:  "test-client",
		Scopes:    []string{"fs:read", "fs:write"},
		Subject:   "test-subject",
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}
}

// GenerateTestCode creates an authorization code expiring in ten minutes
func GenerateTestCode() *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:        GenerateRandomString(32),
		ClientID:    "test-client",
		RedirectURI: "http://localhost:8080/callback",
		Scopes:      []string{"fs:read"},
		Subject:     "test-subject",
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}
}

// GenerateTestClient creates a registered-client record
func GenerateTestClient() *storage.Client {
	return &storage.Client{
		ClientID:                GenerateRandomString(16),
		ClientSecret:            GenerateRandomString(32),
		ClientName:              "test-client-app",
		RedirectURIs:            []string{"http://localhost:8080/callback"},
		TokenEndpointAuthMethod: "client_secret_basic",
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		ClientIDIssuedAt:        time.Now(),
	}
}

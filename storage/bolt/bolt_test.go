package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/giantswarm/mcp-fsgate/internal/testutil"
	"github.com/giantswarm/mcp-fsgate/security"
	"github.com/giantswarm/mcp-fsgate/storage"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s := New(path)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestClientSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")
	ctx := context.Background()

	client := testutil.GenerateTestClient()

	first := New(path)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := first.SetClient(ctx, client); err != nil {
		t.Fatalf("SetClient() error = %v", err)
	}
	if err := first.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// A second instance over the same file sees the registration
	second := newTestStore(t, path)
	got, err := second.GetClient(ctx, client.ClientID)
	if err != nil {
		t.Fatalf("GetClient() after restart error = %v", err)
	}
	if got.ClientSecret != client.ClientSecret {
		t.Errorf("GetClient() ClientSecret mismatch after restart")
	}
	if len(got.RedirectURIs) != len(client.RedirectURIs) {
		t.Errorf("GetClient() RedirectURIs = %v, want %v", got.RedirectURIs, client.RedirectURIs)
	}
}

func TestTokenLifecycle(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "credentials.db"))
	ctx := context.Background()

	token := testutil.GenerateTestToken()
	if err := s.SetAccessToken(ctx, token); err != nil {
		t.Fatalf("SetAccessToken() error = %v", err)
	}

	got, err := s.GetAccessToken(ctx, token.Value)
	if err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	if got.Subject != token.Subject {
		t.Errorf("GetAccessToken() Subject = %q, want %q", got.Subject, token.Subject)
	}

	if err := s.DeleteAccessToken(ctx, token.Value); err != nil {
		t.Fatalf("DeleteAccessToken() error = %v", err)
	}
	if _, err := s.GetAccessToken(ctx, token.Value); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetAccessToken() after delete error = %v, want ErrNotFound", err)
	}
}

func TestConsumeRefreshTokenOnce(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "credentials.db"))
	ctx := context.Background()

	token := testutil.GenerateTestRefreshToken()
	if err := s.SetRefreshToken(ctx, token); err != nil {
		t.Fatalf("SetRefreshToken() error = %v", err)
	}

	if _, err := s.ConsumeRefreshToken(ctx, token.Value); err != nil {
		t.Fatalf("ConsumeRefreshToken() error = %v", err)
	}
	if _, err := s.ConsumeRefreshToken(ctx, token.Value); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ConsumeRefreshToken() second call error = %v, want ErrNotFound", err)
	}
}

func TestEncryptionAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")
	ctx := context.Background()

	key := []byte(testutil.GenerateRandomString(24))[:32]
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	s := New(path)
	s.SetEncryptor(enc)
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })

	token := testutil.GenerateTestToken()
	if err := s.SetAccessToken(ctx, token); err != nil {
		t.Fatalf("SetAccessToken() error = %v", err)
	}

	got, err := s.GetAccessToken(ctx, token.Value)
	if err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	if got.Value != token.Value || got.ClientID != token.ClientID {
		t.Errorf("GetAccessToken() round trip mismatch")
	}
}

func TestCleanupSweepsExpired(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "credentials.db"))
	ctx := context.Background()

	clock := testutil.NewMockTime(time.Now())
	s.SetTimeProvider(clock.Now)

	expiring := testutil.GenerateTestRefreshToken()
	expiring.ExpiresAt = clock.Now().Add(time.Minute)
	if err := s.SetRefreshToken(ctx, expiring); err != nil {
		t.Fatalf("SetRefreshToken() error = %v", err)
	}

	surviving := testutil.GenerateTestRefreshToken()
	surviving.ExpiresAt = clock.Now().Add(24 * time.Hour)
	if err := s.SetRefreshToken(ctx, surviving); err != nil {
		t.Fatalf("SetRefreshToken() error = %v", err)
	}

	clock.Advance(time.Hour)

	removed, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() removed = %d, want 1", removed)
	}

	if _, err := s.GetRefreshToken(ctx, surviving.Value); err != nil {
		t.Errorf("GetRefreshToken() surviving token error = %v", err)
	}
	if _, err := s.GetRefreshToken(ctx, expiring.Value); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetRefreshToken() swept token error = %v, want ErrNotFound", err)
	}
}

func TestUninitializedStoreUnavailable(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "credentials.db"))
	ctx := context.Background()

	if _, err := s.GetClient(ctx, "any"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("GetClient() before Init error = %v, want ErrUnavailable", err)
	}
	if err := s.SetClient(ctx, testutil.GenerateTestClient()); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("SetClient() before Init error = %v, want ErrUnavailable", err)
	}
}

// Package bolt provides a durable implementation of the credential store
// backed by an embedded bbolt database. Registered clients and tokens
// survive process restarts, which the dynamic registration flow requires.
// Record payloads can optionally be encrypted at rest with AES-256-GCM.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/giantswarm/mcp-fsgate/internal/util"
	"github.com/giantswarm/mcp-fsgate/security"
	"github.com/giantswarm/mcp-fsgate/storage"
)

// Bucket names. One bucket per record type.
var (
	bucketCodes         = []byte("codes")
	bucketAccessTokens  = []byte("access_tokens")
	bucketRefreshTokens = []byte("refresh_tokens")
	bucketReuseRecords  = []byte("reuse_records")
	bucketClients       = []byte("clients")
)

var allBuckets = [][]byte{
	bucketCodes,
	bucketAccessTokens,
	bucketRefreshTokens,
	bucketReuseRecords,
	bucketClients,
}

const tokenIDLogLength = 8

// Store is a bbolt-backed implementation of storage.CredentialStore.
type Store struct {
	path      string
	db        *bbolt.DB
	encryptor *security.Encryptor
	now       func() time.Time
	logger    *slog.Logger

	stopOnce sync.Once
}

// Compile-time interface check
var _ storage.CredentialStore = (*Store)(nil)

// New creates a store for the database file at path. The file is not opened
// until Init is called.
func New(path string) *Store {
	return &Store{
		path:   path,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetEncryptor enables encryption at rest for record payloads. Must be
// called before Init; records written with one key cannot be read with
// another.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Credential encryption at rest enabled for bolt store")
	}
}

// SetTimeProvider sets a custom time source. Used by tests to control expiry.
func (s *Store) SetTimeProvider(now func() time.Time) {
	s.now = now
}

// Init opens the database file and creates the buckets
func (s *Store) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", s.path, storage.ErrUnavailable)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("%v: %w", err, storage.ErrUnavailable)
	}

	s.db = db
	s.logger.Debug("Opened credential database", "path", s.path)
	return nil
}

// Stop closes the database
func (s *Store) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		if s.db != nil {
			err = s.db.Close()
		}
	})
	return err
}

// put serializes a record into a bucket, encrypting the payload when an
// encryptor is configured. A failed transaction leaves the previous value
// in place, so there are no partial writes to roll back.
func (s *Store) put(ctx context.Context, bucket []byte, key string, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db == nil {
		return fmt.Errorf("store not initialized: %w", storage.ErrUnavailable)
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	payload := string(data)
	if s.encryptor.IsEnabled() {
		payload, err = s.encryptor.Encrypt(payload)
		if err != nil {
			return fmt.Errorf("failed to encrypt record: %w", err)
		}
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), []byte(payload))
	})
	if err != nil {
		return fmt.Errorf("%v: %w", err, storage.ErrUnavailable)
	}
	return nil
}

// get reads and deserializes a record from a bucket into out.
// Missing keys return storage.ErrNotFound.
func (s *Store) get(ctx context.Context, bucket []byte, key string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db == nil {
		return fmt.Errorf("store not initialized: %w", storage.ErrUnavailable)
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil {
			return storage.ErrNotFound
		}
		// The returned slice is only valid inside the transaction
		payload = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if err == storage.ErrNotFound {
			return fmt.Errorf("%s %s: %w", bucket, util.SafeTruncate(key, tokenIDLogLength), storage.ErrNotFound)
		}
		return fmt.Errorf("%v: %w", err, storage.ErrUnavailable)
	}

	return s.decode(payload, out)
}

// delete removes a key from a bucket. Deleting a missing key is not an error.
func (s *Store) delete(ctx context.Context, bucket []byte, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db == nil {
		return fmt.Errorf("store not initialized: %w", storage.ErrUnavailable)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%v: %w", err, storage.ErrUnavailable)
	}
	return nil
}

func (s *Store) decode(payload []byte, out any) error {
	raw := string(payload)
	if s.encryptor.IsEnabled() {
		decrypted, err := s.encryptor.Decrypt(raw)
		if err != nil {
			return fmt.Errorf("failed to decrypt record: %w", err)
		}
		raw = decrypted
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

func (s *Store) expired(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return security.IsExpiredAt(expiresAt, s.now(), security.DefaultClockSkewGracePeriod)
}

// ============================================================
// Authorization codes
// ============================================================

// GetCode retrieves an authorization code. Expired codes are reported as
// storage.ErrNotFound.
func (s *Store) GetCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	var record storage.AuthorizationCode
	if err := s.get(ctx, bucketCodes, code, &record); err != nil {
		return nil, err
	}
	if s.expired(record.ExpiresAt) {
		return nil, fmt.Errorf("authorization code %s: %w", util.SafeTruncate(code, tokenIDLogLength), storage.ErrNotFound)
	}
	return &record, nil
}

// SetCode stores an authorization code
func (s *Store) SetCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil {
		return fmt.Errorf("code cannot be nil")
	}
	return s.put(ctx, bucketCodes, code.Code, code)
}

// DeleteCode removes an authorization code
func (s *Store) DeleteCode(ctx context.Context, code string) error {
	return s.delete(ctx, bucketCodes, code)
}

// ============================================================
// Access tokens
// ============================================================

// GetAccessToken retrieves an access token. Expired tokens are reported as
// storage.ErrNotFound.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.Token, error) {
	var record storage.Token
	if err := s.get(ctx, bucketAccessTokens, token, &record); err != nil {
		return nil, err
	}
	if s.expired(record.ExpiresAt) {
		return nil, fmt.Errorf("access token %s: %w", util.SafeTruncate(token, tokenIDLogLength), storage.ErrNotFound)
	}
	return &record, nil
}

// SetAccessToken stores an access token
func (s *Store) SetAccessToken(ctx context.Context, token *storage.Token) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	return s.put(ctx, bucketAccessTokens, token.Value, token)
}

// DeleteAccessToken removes an access token
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	return s.delete(ctx, bucketAccessTokens, token)
}

// ============================================================
// Refresh tokens
// ============================================================

// GetRefreshToken retrieves a refresh token without consuming it
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.Token, error) {
	var record storage.Token
	if err := s.get(ctx, bucketRefreshTokens, token, &record); err != nil {
		return nil, err
	}
	if s.expired(record.ExpiresAt) {
		return nil, fmt.Errorf("refresh token %s: %w", util.SafeTruncate(token, tokenIDLogLength), storage.ErrNotFound)
	}
	return &record, nil
}

// SetRefreshToken stores a refresh token
func (s *Store) SetRefreshToken(ctx context.Context, token *storage.Token) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	return s.put(ctx, bucketRefreshTokens, token.Value, token)
}

// DeleteRefreshToken removes a refresh token
func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	return s.delete(ctx, bucketRefreshTokens, token)
}

// ConsumeRefreshToken atomically fetches and deletes a refresh token inside
// a single write transaction, so of two concurrent redemption attempts
// exactly one succeeds.
func (s *Store) ConsumeRefreshToken(ctx context.Context, token string) (*storage.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized: %w", storage.ErrUnavailable)
	}
	if token == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	var record storage.Token
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRefreshTokens)
		key := []byte(token)

		v := b.Get(key)
		if v == nil {
			return storage.ErrNotFound
		}
		if err := s.decode(append([]byte(nil), v...), &record); err != nil {
			return err
		}
		if s.expired(record.ExpiresAt) {
			return storage.ErrNotFound
		}
		return b.Delete(key)
	})
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, fmt.Errorf("refresh token %s: %w", util.SafeTruncate(token, tokenIDLogLength), storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%v: %w", err, storage.ErrUnavailable)
	}

	s.logger.Debug("Consumed refresh token",
		"token_prefix", util.SafeTruncate(token, tokenIDLogLength),
		"client_id", record.ClientID)

	return &record, nil
}

// ============================================================
// Refresh token reuse records
// ============================================================

// SetRefreshTokenReuse records that a refresh token has been rotated
func (s *Store) SetRefreshTokenReuse(ctx context.Context, reuse *storage.RefreshTokenReuse) error {
	if reuse == nil {
		return fmt.Errorf("reuse record cannot be nil")
	}
	return s.put(ctx, bucketReuseRecords, reuse.OldRefreshToken, reuse)
}

// GetRefreshTokenReuse retrieves the reuse record for a rotated refresh token
func (s *Store) GetRefreshTokenReuse(ctx context.Context, oldToken string) (*storage.RefreshTokenReuse, error) {
	var record storage.RefreshTokenReuse
	if err := s.get(ctx, bucketReuseRecords, oldToken, &record); err != nil {
		return nil, err
	}
	if s.expired(record.ExpiresAt) {
		return nil, fmt.Errorf("reuse record %s: %w", util.SafeTruncate(oldToken, tokenIDLogLength), storage.ErrNotFound)
	}
	return &record, nil
}

// ============================================================
// Clients
// ============================================================

// GetClient retrieves a registered client
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	var record storage.Client
	if err := s.get(ctx, bucketClients, clientID, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// SetClient stores a registered client
func (s *Store) SetClient(ctx context.Context, client *storage.Client) error {
	if client == nil {
		return fmt.Errorf("client cannot be nil")
	}
	return s.put(ctx, bucketClients, client.ClientID, client)
}

// ============================================================
// Cleanup
// ============================================================

// expirable is the subset of record fields cleanup needs
type expirable struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// Cleanup removes expired codes, tokens, and reuse records and returns the
// number of entries removed. Registered clients are never swept.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.db == nil {
		return 0, fmt.Errorf("store not initialized: %w", storage.ErrUnavailable)
	}

	removed := 0
	sweep := [][]byte{bucketCodes, bucketAccessTokens, bucketRefreshTokens, bucketReuseRecords}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range sweep {
			b := tx.Bucket(name)
			c := b.Cursor()

			var stale [][]byte
			for k, v := c.First(); k != nil; k, v = c.Next() {
				var rec expirable
				if err := s.decode(append([]byte(nil), v...), &rec); err != nil {
					// Undecodable rows are swept too
					stale = append(stale, append([]byte(nil), k...))
					continue
				}
				if s.expired(rec.ExpiresAt) {
					stale = append(stale, append([]byte(nil), k...))
				}
			}

			for _, k := range stale {
				if err := b.Delete(k); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, storage.ErrUnavailable)
	}

	if removed > 0 {
		s.logger.Debug("Cleaned up expired entries", "removed", removed)
	}

	return removed, nil
}

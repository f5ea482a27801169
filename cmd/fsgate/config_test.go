package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  type: bolt
  path: /var/lib/fsgate/credentials.db
session_dir: /var/lib/fsgate/sessions
jail_root: /srv/workspace
access_token_ttl: 30m
rate_limit:
  rate: 5
  burst: 10
security:
  audit_logging: true
github:
  enabled: true
  owner: giantswarm
  repo: docs
`), 0o600))

	cfg, err := loadFileConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.Store.Type)
	assert.Equal(t, "/srv/workspace", cfg.JailRoot)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 5, cfg.RateLimit.Rate)
	assert.True(t, cfg.Security.AuditLogging)
	assert.True(t, cfg.GitHub.Enabled)
	assert.Equal(t, "giantswarm", cfg.GitHub.Owner)
}

func TestLoadFileConfigEmptyPath(t *testing.T) {
	cfg, err := loadFileConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Store.Type)
}

func TestLoadFileConfigMissingFile(t *testing.T) {
	_, err := loadFileConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEncryptionKeyFromEnv(t *testing.T) {
	cfg := &fileConfig{}
	key, err := cfg.encryptionKey()
	require.NoError(t, err)
	assert.Nil(t, key)

	cfg.Security.EncryptionKeyEnv = "FSGATE_TEST_KEY"
	t.Setenv("FSGATE_TEST_KEY", "0123456789abcdef0123456789abcdef")
	key, err = cfg.encryptionKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	t.Setenv("FSGATE_TEST_KEY", "too-short")
	_, err = cfg.encryptionKey()
	assert.Error(t, err)
}

func TestBuildStore(t *testing.T) {
	_, err := buildStore("memory", "", nil, nil)
	require.NoError(t, err)

	_, err = buildStore("bolt", filepath.Join(t.TempDir(), "creds.db"), nil, nil)
	require.NoError(t, err)

	_, err = buildStore("bolt", "", nil, nil)
	assert.Error(t, err)

	_, err = buildStore("postgres", "", nil, nil)
	assert.Error(t, err)
}

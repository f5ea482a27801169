package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML shape of the serve configuration
type fileConfig struct {
	// Store selects the credential store: "memory" or "bolt"
	Store struct {
		Type string `yaml:"type"`
		Path string `yaml:"path"`
	} `yaml:"store"`

	SessionDir string `yaml:"session_dir"`
	JailRoot   string `yaml:"jail_root"`

	CodeTTL         time.Duration `yaml:"code_ttl"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	AliasTTL        time.Duration `yaml:"alias_ttl"`

	RateLimit struct {
		Rate       int `yaml:"rate"`
		Burst      int `yaml:"burst"`
		MaxEntries int `yaml:"max_entries"`
	} `yaml:"rate_limit"`

	Security struct {
		AuditLogging bool `yaml:"audit_logging"`
		// EncryptionKeyEnv names the environment variable holding the
		// 32-byte encryption key. The key itself never lives in the file.
		EncryptionKeyEnv string `yaml:"encryption_key_env"`
	} `yaml:"security"`

	GitHub struct {
		Enabled bool   `yaml:"enabled"`
		Owner   string `yaml:"owner"`
		Repo    string `yaml:"repo"`
		Ref     string `yaml:"ref"`
		// TokenEnv names the environment variable holding the API token
		TokenEnv string `yaml:"token_env"`
	} `yaml:"github"`

	Instrumentation struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"instrumentation"`
}

// loadFileConfig reads and decodes the YAML configuration. A missing
// path returns an empty config so flags alone can drive the server.
func loadFileConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// encryptionKey resolves the configured key environment variable.
// Returns nil when encryption is not configured.
func (c *fileConfig) encryptionKey() ([]byte, error) {
	if c.Security.EncryptionKeyEnv == "" {
		return nil, nil
	}
	key := os.Getenv(c.Security.EncryptionKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("environment variable %s is empty", c.Security.EncryptionKeyEnv)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key from %s must be exactly 32 bytes, got %d", c.Security.EncryptionKeyEnv, len(key))
	}
	return []byte(key), nil
}

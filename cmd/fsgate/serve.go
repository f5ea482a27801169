package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	fsgate "github.com/giantswarm/mcp-fsgate"
	"github.com/giantswarm/mcp-fsgate/instrumentation"
	"github.com/giantswarm/mcp-fsgate/mcpserver"
	"github.com/giantswarm/mcp-fsgate/security"
	"github.com/giantswarm/mcp-fsgate/storage"
	"github.com/giantswarm/mcp-fsgate/storage/bolt"
	"github.com/giantswarm/mcp-fsgate/storage/memory"
	"github.com/giantswarm/mcp-fsgate/vfs"
)

var (
	serveConfigPath string
	serveSessionDir string
	serveJailRoot   string
	serveStore      string
	serveStorePath  string
	serveDebug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway as an MCP server over stdio",
	Long: `Starts the gateway and serves its filesystem and session tools over
stdio using the Model Context Protocol.

Configuration comes from a YAML file (--config) with flags taking
precedence for the paths and store selection. The bearer token the
server attaches to tool calls is read from FSGATE_BEARER.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadFileConfig(serveConfigPath)
	if err != nil {
		return err
	}

	// stdout carries the MCP transport, so logs go to stderr
	level := slog.LevelInfo
	if serveDebug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	sessionDir := firstNonEmpty(serveSessionDir, fileCfg.SessionDir)
	jailRoot := firstNonEmpty(serveJailRoot, fileCfg.JailRoot)
	storeType := firstNonEmpty(serveStore, fileCfg.Store.Type, "memory")
	storePath := firstNonEmpty(serveStorePath, fileCfg.Store.Path)

	encryptionKey, err := fileCfg.encryptionKey()
	if err != nil {
		return err
	}

	store, err := buildStore(storeType, storePath, encryptionKey, logger)
	if err != nil {
		return err
	}

	var inst *instrumentation.Instrumentation
	if fileCfg.Instrumentation.Enabled {
		inst, err = instrumentation.New(instrumentation.Config{
			ServiceVersion: version,
			Enabled:        true,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize instrumentation: %w", err)
		}
	}

	gateway, err := fsgate.New(cmd.Context(), fsgate.Config{
		Store:           store,
		SessionDir:      sessionDir,
		JailRoot:        jailRoot,
		CodeTTL:         fileCfg.CodeTTL,
		AccessTokenTTL:  fileCfg.AccessTokenTTL,
		RefreshTokenTTL: fileCfg.RefreshTokenTTL,
		AliasTTL:        fileCfg.AliasTTL,
		RateLimit: fsgate.RateLimitConfig{
			Rate:       fileCfg.RateLimit.Rate,
			Burst:      fileCfg.RateLimit.Burst,
			MaxEntries: fileCfg.RateLimit.MaxEntries,
		},
		Security: fsgate.SecurityConfig{
			EnableAuditLogging: fileCfg.Security.AuditLogging,
			EncryptionKey:      encryptionKey,
		},
		Logger:          logger,
		Instrumentation: inst,
	})
	if err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	defer func() { _ = gateway.Close() }()

	if fileCfg.GitHub.Enabled {
		github, err := vfs.NewGitHubBackend(&vfs.GitHubConfig{
			Owner: fileCfg.GitHub.Owner,
			Repo:  fileCfg.GitHub.Repo,
			Ref:   fileCfg.GitHub.Ref,
			Token: os.Getenv(fileCfg.GitHub.TokenEnv),
		})
		if err != nil {
			return fmt.Errorf("failed to configure github backend: %w", err)
		}
		gateway.RegisterBackend(github)
	}

	bearer := os.Getenv("FSGATE_BEARER")
	srv, err := mcpserver.NewMCPServer(gateway, func() string { return bearer }, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting fsgate MCP server",
		"store", storeType,
		"jail_root", jailRoot,
		"session_dir", sessionDir)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		if inst != nil {
			_ = inst.Shutdown(context.Background())
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// buildStore constructs the configured credential store
func buildStore(storeType, storePath string, encryptionKey []byte, logger *slog.Logger) (storage.CredentialStore, error) {
	switch storeType {
	case "memory":
		s := memory.New()
		if logger != nil {
			s.SetLogger(logger)
		}
		return s, nil
	case "bolt":
		if storePath == "" {
			return nil, fmt.Errorf("store path is required for the bolt store")
		}
		s := bolt.New(storePath)
		if logger != nil {
			s.SetLogger(logger)
		}
		if len(encryptionKey) > 0 {
			enc, err := security.NewEncryptor(encryptionKey)
			if err != nil {
				return nil, fmt.Errorf("failed to create encryptor: %w", err)
			}
			s.SetEncryptor(enc)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type %q (want memory or bolt)", storeType)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to the YAML configuration file")
	serveCmd.Flags().StringVar(&serveSessionDir, "session-dir", "", "Directory for session ownership records")
	serveCmd.Flags().StringVar(&serveJailRoot, "jail-root", "", "Absolute directory the local backend serves")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "Credential store type: memory or bolt")
	serveCmd.Flags().StringVar(&serveStorePath, "store-path", "", "Database file for the bolt store")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
}

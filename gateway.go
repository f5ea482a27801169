// Package fsgate is a trust and session gateway in front of a
// capability-scoped filesystem tool. Every inbound tool call passes
// through credential validation, session arbitration with alias
// translation, and the jailed virtual filesystem facade.
package fsgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/mcp-fsgate/instrumentation"
	"github.com/giantswarm/mcp-fsgate/security"
	"github.com/giantswarm/mcp-fsgate/session"
	"github.com/giantswarm/mcp-fsgate/storage"
	"github.com/giantswarm/mcp-fsgate/vfs"
)

// Gateway wires the credential store, session layer, and virtual
// filesystem together and exposes the operations the tool surface calls.
type Gateway struct {
	config Config
	store  storage.CredentialStore
	logger *slog.Logger

	auditor             *security.Auditor
	registrationLimiter *security.RateLimiter
	instrumentation     *instrumentation.Instrumentation

	aliases *session.AliasRegistry
	arbiter *session.Arbiter
	fs      *vfs.FS

	pid int
}

// New creates a gateway from config. The credential store is initialized
// here; call Close on shutdown.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("config.Store is required")
	}
	if cfg.SessionDir == "" {
		return nil, fmt.Errorf("config.SessionDir is required")
	}
	cfg.applySecureDefaults()

	if err := cfg.Store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	recordStore, err := session.NewFileRecordStore(cfg.SessionDir)
	if err != nil {
		return nil, err
	}

	aliasTTL := cfg.AliasTTL
	if aliasTTL <= 0 {
		aliasTTL = session.DefaultAliasTTL
	}

	g := &Gateway{
		config:  cfg,
		store:   cfg.Store,
		logger:  cfg.Logger,
		auditor: security.NewAuditor(cfg.Logger, cfg.Security.EnableAuditLogging),
		aliases: session.NewAliasRegistry(nil, func() time.Duration { return aliasTTL }),
		arbiter: session.NewArbiter(recordStore, nil, nil),
		fs:      vfs.New(),
		pid:     os.Getpid(),
	}

	g.aliases.SetLogger(cfg.Logger)
	g.arbiter.SetLogger(cfg.Logger)
	g.arbiter.SetAuditor(g.auditor)
	g.fs.SetLogger(cfg.Logger)

	if cfg.Instrumentation != nil {
		g.instrumentation = cfg.Instrumentation
		g.aliases.SetInstrumentation(cfg.Instrumentation)
		g.arbiter.SetInstrumentation(cfg.Instrumentation)
		g.fs.SetInstrumentation(cfg.Instrumentation)
		if s, ok := cfg.Store.(interface {
			SetInstrumentation(*instrumentation.Instrumentation)
		}); ok {
			s.SetInstrumentation(cfg.Instrumentation)
		}
	}

	if cfg.RateLimit.Rate > 0 {
		g.registrationLimiter = security.NewRateLimiter(
			cfg.RateLimit.Rate, cfg.RateLimit.Burst, cfg.RateLimit.MaxEntries, cfg.Logger)
	}

	if cfg.JailRoot != "" {
		local, err := vfs.NewLocalBackend(cfg.JailRoot)
		if err != nil {
			return nil, err
		}
		g.fs.Register(local)
	}

	return g, nil
}

// RegisterBackend adds an additional filesystem backend (e.g. a hosted
// repository backend)
func (g *Gateway) RegisterBackend(b vfs.Backend) {
	g.fs.Register(b)
}

// FS exposes the virtual filesystem facade
func (g *Gateway) FS() *vfs.FS {
	return g.fs
}

// Aliases exposes the session alias registry
func (g *Gateway) Aliases() *session.AliasRegistry {
	return g.aliases
}

// NewConnectionID mints an opaque identifier for one client connection,
// used as the alias registry context parameter.
func (g *Gateway) NewConnectionID() string {
	return uuid.NewString()
}

// Close releases the gateway's resources
func (g *Gateway) Close() error {
	if g.registrationLimiter != nil {
		g.registrationLimiter.Stop()
	}
	return g.store.Stop()
}

// ResolveSession authorizes a tool call against a session: bearer
// validation, ownership arbitration, alias minting. The returned info
// carries both the durable id and the short alias the client sees.
func (g *Gateway) ResolveSession(ctx context.Context, bearer, sessionID, connectionID string) (*SessionInfo, error) {
	if _, err := g.ValidateBearer(ctx, bearer); err != nil {
		return nil, err
	}

	decision, err := g.arbiter.Acquire(ctx, sessionID, g.pid)
	if err != nil {
		if errors.Is(err, session.ErrConflict) {
			return nil, ErrConflict(err.Error()).WithCause(err)
		}
		return nil, MapError(err)
	}

	alias := g.aliases.AliasFor(session.KindSession, sessionID, connectionID)

	return &SessionInfo{
		SessionID: sessionID,
		Alias:     alias,
		Decision:  decision.String(),
	}, nil
}

// ResolveSessionAlias translates a short session alias back to its durable
// identifier
func (g *Gateway) ResolveSessionAlias(ctx context.Context, bearer, alias, connectionID string) (string, error) {
	if _, err := g.ValidateBearer(ctx, bearer); err != nil {
		return "", err
	}

	id, ok := g.aliases.ResolveAlias(session.KindSession, alias, connectionID)
	if !ok {
		return "", ErrNotFound(fmt.Sprintf("alias %q is unknown or expired", alias))
	}
	return id, nil
}

// FSList lists a directory after bearer validation
func (g *Gateway) FSList(ctx context.Context, bearer, backend, dir string) ([]vfs.FileInfo, error) {
	if _, err := g.ValidateBearer(ctx, bearer); err != nil {
		return nil, err
	}
	entries, err := g.fs.List(ctx, backend, dir)
	if err != nil {
		return nil, g.mapFSError(err, dir)
	}
	return entries, nil
}

// FSRead reads a file after bearer validation
func (g *Gateway) FSRead(ctx context.Context, bearer, backend, filePath string) ([]byte, error) {
	if _, err := g.ValidateBearer(ctx, bearer); err != nil {
		return nil, err
	}
	data, err := g.fs.ReadFile(ctx, backend, filePath)
	if err != nil {
		return nil, g.mapFSError(err, filePath)
	}
	return data, nil
}

// FSWrite writes a file after bearer validation
func (g *Gateway) FSWrite(ctx context.Context, bearer, backend, filePath string, data []byte) error {
	if _, err := g.ValidateBearer(ctx, bearer); err != nil {
		return err
	}
	if err := g.fs.WriteFile(ctx, backend, filePath, data); err != nil {
		return g.mapFSError(err, filePath)
	}
	return nil
}

// FSDelete deletes a path after bearer validation
func (g *Gateway) FSDelete(ctx context.Context, bearer, backend, target string) error {
	if _, err := g.ValidateBearer(ctx, bearer); err != nil {
		return err
	}
	if err := g.fs.DeletePath(ctx, backend, target); err != nil {
		return g.mapFSError(err, target)
	}
	return nil
}

// FSStat stats a path after bearer validation
func (g *Gateway) FSStat(ctx context.Context, bearer, backend, target string) (*vfs.FileInfo, error) {
	if _, err := g.ValidateBearer(ctx, bearer); err != nil {
		return nil, err
	}
	info, err := g.fs.Stat(ctx, backend, target)
	if err != nil {
		return nil, g.mapFSError(err, target)
	}
	return info, nil
}

// FSGlob globs the backend after bearer validation
func (g *Gateway) FSGlob(ctx context.Context, bearer, backend, pattern string, opts vfs.GlobOptions) (*vfs.GlobResult, error) {
	if _, err := g.ValidateBearer(ctx, bearer); err != nil {
		return nil, err
	}
	result, err := g.fs.Glob(ctx, backend, pattern, opts)
	if err != nil {
		return nil, g.mapFSError(err, opts.Path)
	}
	return result, nil
}

// mapFSError classifies a vfs error, auditing path escapes before they
// propagate
func (g *Gateway) mapFSError(err error, input string) *GateError {
	if errors.Is(err, vfs.ErrPathEscape) {
		g.auditor.LogPathEscape("", input)
		if g.instrumentation != nil {
			g.instrumentation.Metrics().RecordPathEscapeBlocked(context.Background())
		}
	}
	return MapError(err)
}

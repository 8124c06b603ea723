// Package app wires configuration into the ledger, domain services and
// servers shared by the sealab binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/sealab/internal/codec"
	"github.com/rpggio/sealab/internal/config"
	"github.com/rpggio/sealab/internal/domain/abtest"
	"github.com/rpggio/sealab/internal/domain/activity"
	"github.com/rpggio/sealab/internal/domain/disclosure"
	"github.com/rpggio/sealab/internal/domain/keyindex"
	"github.com/rpggio/sealab/internal/ledger"
	"github.com/rpggio/sealab/internal/mcp"
	"github.com/rpggio/sealab/internal/postgres"
	"github.com/rpggio/sealab/internal/signer"
	"github.com/rpggio/sealab/internal/sqlite"
	"github.com/rpggio/sealab/internal/transport"
)

// App holds the wired services of one sealab process.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	DB         *sqlite.DB
	Ledger     ledger.Ledger
	Registry   *abtest.Service
	Disclosure *disclosure.Service
	Activity   *activity.Service
	APIKeys    *sqlite.APIKeyRepository
	Signer     *signer.Keyring
	// Key is the local signing key held by Signer.
	Key *signer.Local
	// Identity is the caller identity used when auth is disabled.
	Identity string

	staticKeys transport.StaticKeys
	closers    []func() error
}

// New opens storage and builds every service described by cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &App{Config: cfg, Logger: logger}

	if err := ensureDir(cfg.DB.Path); err != nil {
		return nil, fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	if err := db.RunMigrations(); err != nil {
		a.Close()
		return nil, err
	}

	l, err := a.openLedger(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Ledger = l

	local, err := a.loadSigner()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Key = local
	a.Signer = signer.NewKeyring(local)
	a.Identity = cfg.Auth.Identity
	if a.Identity == "" {
		a.Identity = local.Identity()
	}

	c := codec.NewPlaceholder()
	activityRepo := sqlite.NewActivityRepository(db)
	a.Activity = activity.NewService(activityRepo, logger)
	a.Registry = abtest.NewService(l, keyindex.New(l, logger), c, activityRepo, logger)
	a.Disclosure, err = disclosure.NewService(a.Signer, c, activityRepo, logger, cfg.Disclosure.SessionCache)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.APIKeys = sqlite.NewAPIKeyRepository(db)
	a.staticKeys = make(transport.StaticKeys, len(cfg.Auth.Keys))
	for _, k := range cfg.Auth.Keys {
		a.staticKeys[k.TokenHash] = k.Identity
	}

	logger.Info("sealab ready",
		"ledger", cfg.Ledger.Driver,
		"identity", a.Identity,
		"auth", cfg.Auth.Enabled,
	)
	return a, nil
}

func (a *App) openLedger(ctx context.Context) (ledger.Ledger, error) {
	cfg := a.Config.Ledger
	switch cfg.Driver {
	case "memory":
		return ledger.NewMemory(), nil
	case "file":
		if err := ensureDir(cfg.Path); err != nil {
			return nil, fmt.Errorf("prepare ledger path: %w", err)
		}
		return ledger.NewFile(cfg.Path), nil
	case "sqlite", "":
		return sqlite.NewLedger(a.DB), nil
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	case "remote":
		return transport.NewClient(cfg.URL, cfg.Token, &http.Client{Timeout: 30 * time.Second}), nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}

// loadSigner reads the configured key, creating it on first start. An empty
// key path yields an ephemeral key.
func (a *App) loadSigner() (*signer.Local, error) {
	path := a.Config.Signer.KeyPath
	if path == "" {
		l, _, err := signer.Generate()
		return l, err
	}
	l, err := signer.LoadKey(path)
	if errors.Is(err, fs.ErrNotExist) {
		a.Logger.Info("generating signer key", "path", path)
		return signer.WriteKey(path)
	}
	return l, err
}

// ResolveIdentity resolves a bearer token against configured keys first and
// then the api_keys table.
func (a *App) ResolveIdentity(ctx context.Context, token string) (string, error) {
	if identity, err := a.staticKeys.ResolveIdentity(ctx, token); err == nil {
		return identity, nil
	}
	return a.APIKeys.ResolveIdentity(ctx, token)
}

// MCPServer builds an MCP server over the app services.
func (a *App) MCPServer() *sdkmcp.Server {
	return mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Registry:   a.Registry,
			Disclosure: a.Disclosure,
			Activity:   a.Activity,
		},
		Resolver:        a,
		AuthEnabled:     a.Config.Auth.Enabled,
		TransportMode:   a.Config.Transport.Mode,
		DefaultIdentity: a.Identity,
		Disclosure: mcp.DisclosureDefaults{
			ContractAddress: a.Config.Disclosure.ContractAddress,
			ChainID:         a.Config.Disclosure.ChainID,
			DurationDays:    a.Config.Disclosure.DurationDays,
		},
		Logger: a.Logger,
	})
}

// HTTPHandler serves MCP at /mcp, the ledger RPC at /ledger and a health
// probe at /health.
func (a *App) HTTPHandler(server *sdkmcp.Server) http.Handler {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return server },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	var authMW func(http.Handler) http.Handler
	if a.Config.Auth.Enabled {
		authMW = transport.AuthMiddleware(a)
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ok, err := a.Ledger.IsAvailable(r.Context())
		if err != nil || !ok {
			http.Error(w, "ledger unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		if authMW != nil {
			r.Use(authMW)
		}
		r.Handle("/mcp", mcpHandler)
		r.Handle("/mcp/*", mcpHandler)
	})
	r.Mount("/ledger", transport.NewServer(a.Ledger, a.Logger, authMW))
	return r
}

// Close releases storage in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") || filepath.Dir(path) == "." {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/sealab/internal/domain/abtest"
	"github.com/rpggio/sealab/internal/domain/activity"
	"github.com/rpggio/sealab/internal/domain/disclosure"
)

// RegistryService defines test registry operations needed by MCP.
type RegistryService interface {
	Create(ctx context.Context, req abtest.CreateRequest) (*abtest.TestRecord, error)
	List(ctx context.Context, opts abtest.ListOptions) ([]abtest.TestRecord, error)
	Get(ctx context.Context, id string) (*abtest.TestRecord, error)
	Complete(ctx context.Context, id, caller string) (*abtest.TestRecord, error)
	Stats(ctx context.Context) (abtest.Stats, error)
	AverageSide(ctx context.Context, ids []string, side abtest.Side) (string, error)
}

// DisclosureService defines disclosure operations needed by MCP.
type DisclosureService interface {
	Open(ctx context.Context, identity string, c disclosure.Context) (disclosure.Session, error)
	Get(sessionID string) (disclosure.Session, error)
	Authenticate(ctx context.Context, sessionID string) ([]byte, error)
	Decrypt(ctx context.Context, sessionID, ciphertext string, signature []byte) (float64, error)
	DiscloseRecord(ctx context.Context, sessionID string, rec *abtest.TestRecord, signature []byte) (disclosure.Disclosed, error)
	Close(sessionID string) bool
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Registry   RegistryService
	Disclosure DisclosureService
	Activity   ActivityService
}

// DisclosureDefaults fill in challenge fields a caller leaves out.
type DisclosureDefaults struct {
	ContractAddress string
	ChainID         int64
	DurationDays    int
}

// Config contains server configuration.
type Config struct {
	Services        Services
	Resolver        IdentityResolver
	AuthEnabled     bool
	TransportMode   string // "stdio" or "http"
	DefaultIdentity string
	Disclosure      DisclosureDefaults
	Logger          *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "sealab",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is local-only and always runs as the configured identity.
	if cfg.TransportMode == "stdio" || !cfg.AuthEnabled {
		server.AddReceivingMiddleware(noAuthMiddleware(cfg.DefaultIdentity))
	} else {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, &tools{
		services: cfg.Services,
		defaults: cfg.Disclosure,
		logger:   cfg.Logger,
	})

	return server
}

package testserver

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/sealab/internal/app"
	"github.com/rpggio/sealab/internal/config"
)

type TestServer struct {
	Server   *httptest.Server
	App      *app.App
	Token    string
	Identity string
}

// New starts an HTTP sealab server over a shared in-memory database. The
// token resolves to the identity of the server's signing key so disclosure
// sessions opened with it can authenticate.
func New(t *testing.T, token string) *TestServer {
	t.Helper()
	return NewWithConfig(t, token, func(*config.Config) {})
}

// NewWithConfig is New with a hook to adjust the configuration.
func NewWithConfig(t *testing.T, token string, adjust func(*config.Config)) *TestServer {
	t.Helper()

	cfg := config.Default()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	cfg.DB.Path = fmt.Sprintf("file:%s-%s?mode=memory&cache=shared", name, uuid.NewString())
	cfg.Signer.KeyPath = filepath.Join(t.TempDir(), "sealab.key")
	cfg.Disclosure.SessionCache = 16
	adjust(&cfg)

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)

	server := httptest.NewServer(a.HTTPHandler(a.MCPServer()))

	ts := &TestServer{
		Server:   server,
		App:      a,
		Token:    token,
		Identity: a.Identity,
	}
	require.NoError(t, ts.AddAPIKey(token, a.Identity))

	t.Cleanup(func() {
		server.Close()
		_ = a.Close()
	})

	return ts
}

func (ts *TestServer) AddAPIKey(token, identity string) error {
	return ts.App.APIKeys.Add(context.Background(), token, identity, "test")
}

package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/sealab/internal/ledger"
)

func newClientServer(t *testing.T, mem *ledger.Memory, token string) *Client {
	t.Helper()
	var auth = AuthMiddleware(StaticKeys{HashToken("good"): "0x1"})
	server := httptest.NewServer(NewServer(mem, nil, auth))
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/", token, server.Client())
}

func TestClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemory()
	c := newClientServer(t, mem, "good")

	ok, err := c.IsAvailable(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := c.GetData(ctx, "missing")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	receipt, err := c.SetData(ctx, ledger.IndexKey, []byte(`["a"]`))
	require.NoError(t, err)
	require.Equal(t, ledger.Checksum([]byte(`["a"]`)), receipt.Checksum)

	got, err = c.GetData(ctx, ledger.IndexKey)
	require.NoError(t, err)
	require.Equal(t, `["a"]`, string(got))

	direct, err := mem.GetData(ctx, ledger.IndexKey)
	require.NoError(t, err)
	require.Equal(t, got, direct)
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemory()

	bad := newClientServer(t, mem, "wrong")
	_, err := bad.GetData(ctx, "k")
	require.ErrorIs(t, err, ErrUnauthorized)

	c := newClientServer(t, mem, "good")
	mem.SetAvailable(false)
	ok, err := c.IsAvailable(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	_, err = c.GetData(ctx, "k")
	require.ErrorIs(t, err, ledger.ErrUnavailable)

	mem.SetAvailable(true)
	mem.FailWrites("k", errors.New("reverted"))
	_, err = c.SetData(ctx, "k", []byte("v"))
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, ErrLedgerWrite, rpcErr.Code)
}

func TestClient_ServerDown(t *testing.T) {
	server := httptest.NewServer(NewServer(ledger.NewMemory(), nil, nil))
	c := NewClient(server.URL, "", server.Client())
	server.Close()

	ok, err := c.IsAvailable(context.Background())
	require.ErrorIs(t, err, ledger.ErrUnavailable)
	require.False(t, ok)
}

package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type testResolver struct {
	tokenToIdentity map[string]string
	err             error
}

func (r *testResolver) ResolveIdentity(_ context.Context, token string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	identity, ok := r.tokenToIdentity[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return identity, nil
}

func TestAuthMiddleware(t *testing.T) {
	resolver := &testResolver{tokenToIdentity: map[string]string{"token": "0xabc"}}

	var seen string
	handler := AuthMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0xabc", seen)
}

func TestAuthMiddleware_Invalid(t *testing.T) {
	resolver := &testResolver{err: errors.New("invalid")}

	handler := AuthMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaticKeys(t *testing.T) {
	keys := StaticKeys{HashToken("secret"): "0xabc"}

	identity, err := keys.ResolveIdentity(context.Background(), "secret")
	require.NoError(t, err)
	require.Equal(t, "0xabc", identity)

	_, err = keys.ResolveIdentity(context.Background(), "other")
	require.ErrorIs(t, err, ErrUnauthorized)

	require.Len(t, HashToken("x"), 64)
}

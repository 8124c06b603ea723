package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAPIKeyRepository(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewAPIKeyRepository(db)

	require.NoError(t, repo.Add(ctx, "secret", "0xabc", "laptop"))
	require.Error(t, repo.Add(ctx, "secret", "0xdef", "dup"))
	require.Error(t, repo.Add(ctx, "", "0xdef", ""))

	identity, err := repo.ResolveIdentity(ctx, "secret")
	require.NoError(t, err)
	require.Equal(t, "0xabc", identity)

	var stored string
	require.NoError(t, db.QueryRow(`SELECT key_hash FROM api_keys`).Scan(&stored))
	require.NotEqual(t, "secret", stored)
	require.Len(t, stored, 64)

	_, err = repo.ResolveIdentity(ctx, "nope")
	require.ErrorIs(t, err, ErrUnknownKey)
}

package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFile_RoundTripAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	first := NewFile(path)
	ok, err := first.IsAvailable(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	empty, err := first.GetData(ctx, "nothing")
	require.NoError(t, err)
	require.Empty(t, empty)

	receipt, err := first.SetData(ctx, RecordKey("r1"), []byte(`{"name":"x"}`))
	require.NoError(t, err)
	require.Equal(t, int64(1), receipt.Revision)

	second := NewFile(path)
	data, err := second.GetData(ctx, RecordKey("r1"))
	require.NoError(t, err)
	require.Equal(t, `{"name":"x"}`, string(data))

	receipt, err = second.SetData(ctx, RecordKey("r1"), []byte(`{"name":"y"}`))
	require.NoError(t, err)
	require.Equal(t, int64(2), receipt.Revision)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestFile_UnavailableWhenDirectoryMissing(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "missing", "ledger.json"))
	ok, err := f.IsAvailable(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFile_CorruptDocumentFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFile(path).GetData(context.Background(), "k")
	require.Error(t, err)
}

package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"
)

// Well-known keys. These must stay bit-exact for existing deployments.
const (
	IndexKey        = "test_config_keys"
	RecordKeyPrefix = "test_config_"
)

// RecordKey returns the ledger key holding the body of a test record.
func RecordKey(id string) string {
	return RecordKeyPrefix + id
}

// Ledger is the opaque key/value contract the registry persists into.
// GetData returns empty bytes for absent keys.
type Ledger interface {
	IsAvailable(ctx context.Context) (bool, error)
	GetData(ctx context.Context, key string) ([]byte, error)
	SetData(ctx context.Context, key string, value []byte) (Receipt, error)
}

// Receipt acknowledges a successful SetData.
type Receipt struct {
	Key      string    `json:"key"`
	Checksum string    `json:"checksum"`
	Size     int       `json:"size"`
	Revision int64     `json:"revision"`
	At       time.Time `json:"at"`
}

// NewReceipt builds a receipt for value stored at key with the given revision.
func NewReceipt(key string, value []byte, revision int64) Receipt {
	return Receipt{
		Key:      key,
		Checksum: Checksum(value),
		Size:     len(value),
		Revision: revision,
		At:       time.Now().UTC(),
	}
}

// Checksum returns the hex xxh3 digest of value.
func Checksum(value []byte) string {
	return strconv.FormatUint(xxh3.Hash(value), 16)
}

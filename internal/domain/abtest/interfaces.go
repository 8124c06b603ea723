package abtest

import (
	"context"

	"github.com/rpggio/sealab/internal/domain/activity"
	"github.com/rpggio/sealab/internal/ledger"
)

// KeyIndex is the ordered id list the registry appends to.
type KeyIndex interface {
	Load(ctx context.Context) ([]string, error)
	Append(ctx context.Context, id string) (ledger.Receipt, error)
}

// Codec encodes parameter values into ciphertext strings.
type Codec interface {
	Encode(value float64) (string, error)
	AggregateAverage(ciphertexts []string) (string, error)
}

// ActivityRepository records registry events.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
}

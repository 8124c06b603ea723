// Package keyindex maintains the ordered list of record ids stored as one
// JSON array under ledger.IndexKey.
package keyindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/rpggio/sealab/internal/ledger"
)

// Index reads and appends record ids.
type Index struct {
	ledger ledger.Ledger
	key    string
	logger *slog.Logger
}

// New creates an index over l at the well-known index key.
func New(l ledger.Ledger, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Index{ledger: l, key: ledger.IndexKey, logger: logger}
}

// Load returns the ids in insertion order. Missing or malformed index bytes
// yield an empty list; only a failed ledger read is an error.
func (i *Index) Load(ctx context.Context) ([]string, error) {
	raw, err := i.ledger.GetData(ctx, i.key)
	if err != nil {
		return nil, fmt.Errorf("%w: reading index: %w", ledger.ErrPersistence, err)
	}
	return i.parse(raw), nil
}

// Append adds id to the end of the index. Read-modify-write, last writer wins.
func (i *Index) Append(ctx context.Context, id string) (ledger.Receipt, error) {
	if strings.TrimSpace(id) == "" {
		return ledger.Receipt{}, ErrInvalidID
	}

	ids, err := i.Load(ctx)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if slices.Contains(ids, id) {
		return ledger.Receipt{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	ids = append(ids, id)

	raw, err := json.Marshal(ids)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("encoding index: %w", err)
	}
	receipt, err := i.ledger.SetData(ctx, i.key, raw)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("%w: writing index: %w", ledger.ErrPersistence, err)
	}
	return receipt, nil
}

func (i *Index) parse(raw []byte) []string {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []string{}
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		i.logger.Warn("malformed record index, treating as empty", "key", i.key, "error", err)
		return []string{}
	}
	if ids == nil {
		return []string{}
	}
	return ids
}

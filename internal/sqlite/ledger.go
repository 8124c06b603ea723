package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpggio/sealab/internal/ledger"
)

// Ledger implements ledger.Ledger on the ledger_entries table.
type Ledger struct {
	db *DB
}

// NewLedger creates a new Ledger
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// IsAvailable pings the database.
func (l *Ledger) IsAvailable(ctx context.Context) (bool, error) {
	if err := l.db.PingContext(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// GetData returns the stored bytes, or empty bytes when key is absent.
func (l *Ledger) GetData(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := l.db.QueryRowContext(ctx, `SELECT value FROM ledger_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return []byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// SetData upserts key and bumps its revision.
func (l *Ledger) SetData(ctx context.Context, key string, value []byte) (ledger.Receipt, error) {
	if value == nil {
		value = []byte{}
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO ledger_entries (key, value, revision, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			revision = ledger_entries.revision + 1,
			updated_at = excluded.updated_at
		RETURNING revision
	`

	var revision int64
	if err := l.db.QueryRowContext(ctx, query, key, value, now).Scan(&revision); err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to set %s: %w", key, err)
	}

	receipt := ledger.NewReceipt(key, value, revision)
	receipt.At = now
	return receipt, nil
}

// Keys lists stored keys in order.
func (l *Ledger) Keys(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT key FROM ledger_entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key rows: %w", err)
	}
	return keys, nil
}

// Package postgres stores ledger entries in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/rpggio/sealab/internal/ledger"
)

// Ledger implements ledger.Ledger with PostgreSQL persistence.
type Ledger struct {
	db *sql.DB
}

// Open connects to dsn, verifies the connection and creates the schema.
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return l, nil
}

func (l *Ledger) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		key TEXT PRIMARY KEY,
		value BYTEA NOT NULL,
		revision BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);
	`

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := l.db.ExecContext(ctx, schema)
	return err
}

// Close closes the connection pool.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) IsAvailable(ctx context.Context) (bool, error) {
	if err := l.db.PingContext(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) GetData(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := l.db.QueryRowContext(ctx, `SELECT value FROM ledger_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return []byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (l *Ledger) SetData(ctx context.Context, key string, value []byte) (ledger.Receipt, error) {
	if value == nil {
		value = []byte{}
	}

	query := `
	INSERT INTO ledger_entries (key, value, revision, updated_at)
	VALUES ($1, $2, 1, NOW())
	ON CONFLICT (key) DO UPDATE SET
		value = EXCLUDED.value,
		revision = ledger_entries.revision + 1,
		updated_at = NOW()
	RETURNING revision, updated_at
	`

	var (
		revision  int64
		updatedAt time.Time
	)
	if err := l.db.QueryRowContext(ctx, query, key, value).Scan(&revision, &updatedAt); err != nil {
		return ledger.Receipt{}, fmt.Errorf("upserting %s: %w", key, err)
	}

	receipt := ledger.NewReceipt(key, value, revision)
	receipt.At = updatedAt.UTC()
	return receipt, nil
}

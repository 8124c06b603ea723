package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownKey indicates no identity is registered for a token.
var ErrUnknownKey = errors.New("unknown api key")

// APIKeyRepository maps bearer token hashes to caller identities.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Add registers token for identity. Only the token hash is stored.
func (r *APIKeyRepository) Add(ctx context.Context, token, identity, description string) error {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(identity) == "" {
		return fmt.Errorf("token and identity are required")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, identity, created_at, description) VALUES (?, ?, ?, ?)`,
		hashToken(token), identity, time.Now().UTC(), description,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("api key already registered")
		}
		return fmt.Errorf("failed to add api key: %w", err)
	}
	return nil
}

// ResolveIdentity returns the identity for token and records its use.
func (r *APIKeyRepository) ResolveIdentity(ctx context.Context, token string) (string, error) {
	hash := hashToken(token)
	var identity string
	err := r.db.QueryRowContext(ctx, `SELECT identity FROM api_keys WHERE key_hash = ?`, hash).Scan(&identity)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && identity == "") {
		return "", ErrUnknownKey
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve api key: %w", err)
	}
	_, _ = r.db.ExecContext(ctx, `UPDATE api_keys SET last_used = ? WHERE key_hash = ?`, time.Now().UTC(), hash)
	return identity, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

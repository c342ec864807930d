package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mpesagw/internal/store"
)

// APIClientRepo is the pgx-backed store.APIClientStore.
type APIClientRepo struct {
	db *pgxpool.Pool
}

func NewAPIClientRepo(db *pgxpool.Pool) *APIClientRepo {
	return &APIClientRepo{db: db}
}

func (r *APIClientRepo) FindByKeyHash(ctx context.Context, keyHash string) (*store.APIClient, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, is_active
		FROM api_clients WHERE key_hash=$1 AND is_active`, keyHash)
	var c store.APIClient
	err := row.Scan(&c.ID, &c.Name, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// HashAPIKey pre-hashes keys for storage and lookup; raw keys are never
// persisted.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

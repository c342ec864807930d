package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mpesagw/internal/domain/merchant"
	"mpesagw/internal/store"
)

// MerchantRepo is the pgx-backed store.MerchantStore.
type MerchantRepo struct {
	db *pgxpool.Pool
}

func NewMerchantRepo(db *pgxpool.Pool) *MerchantRepo {
	return &MerchantRepo{db: db}
}

const merchantColumns = `id, name, shortcode, consumer_key, consumer_secret,
	passkey, initiator_name, security_credential`

func (r *MerchantRepo) FindByID(ctx context.Context, id int64) (*merchant.Merchant, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+merchantColumns+` FROM merchants WHERE id=$1`, id)
	return scanMerchant(row)
}

func (r *MerchantRepo) Default(ctx context.Context) (*merchant.Merchant, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+merchantColumns+` FROM merchants ORDER BY id LIMIT 1`)
	return scanMerchant(row)
}

func scanMerchant(row scannable) (*merchant.Merchant, error) {
	var (
		m                               merchant.Merchant
		key, secret, passkey            *string
		initiator, securityCred         *string
	)
	err := row.Scan(&m.ID, &m.Name, &m.Shortcode, &key, &secret, &passkey, &initiator, &securityCred)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.ConsumerKey = deref(key)
	m.ConsumerSecret = deref(secret)
	m.Passkey = deref(passkey)
	m.InitiatorName = deref(initiator)
	m.SecurityCredential = deref(securityCred)
	return &m, nil
}

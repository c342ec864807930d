package store

import (
	"context"
	"errors"

	"mpesagw/internal/domain/merchant"
	"mpesagw/internal/domain/transaction"
)

// ErrNotFound is returned by lookups with no matching record.
var ErrNotFound = errors.New("not found")

// TransactionStore owns the lifecycle record for every payment attempt.
// Per-record atomicity is all the core needs; there are no multi-record
// transactions.
type TransactionStore interface {
	// Create inserts t and assigns its ID and timestamps.
	Create(ctx context.Context, t *transaction.Transaction) error
	FindByID(ctx context.Context, id int64) (*transaction.Transaction, error)
	// FindByCorrelationID resolves a provider-issued identifier to the
	// transaction it belongs to.
	FindByCorrelationID(ctx context.Context, kind transaction.CorrelationKind, id string) (*transaction.Transaction, error)
	// Update applies the non-nil fields of u and returns the updated record.
	Update(ctx context.Context, id int64, u transaction.Update) (*transaction.Transaction, error)
	// List returns recent transactions, newest first. merchantID 0 means all.
	List(ctx context.Context, merchantID int64, limit, offset int) ([]*transaction.Transaction, error)
}

// MerchantStore reads per-tenant credential sets. Read-only from the core's
// perspective.
type MerchantStore interface {
	FindByID(ctx context.Context, id int64) (*merchant.Merchant, error)
	// Default returns the merchant used when a request names none. The core
	// never calls this; only the HTTP layer's selection policy does.
	Default(ctx context.Context) (*merchant.Merchant, error)
}

// APIClient is a caller allowed through the API-key gate.
type APIClient struct {
	ID     int64
	Name   string
	Active bool
}

// APIClientStore is the allow/deny lookup behind the API-key middleware.
type APIClientStore interface {
	FindByKeyHash(ctx context.Context, keyHash string) (*APIClient, error)
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mpesagw/internal/domain/transaction"
	"mpesagw/internal/store"
)

// TransactionRepo is the pgx-backed store.TransactionStore.
type TransactionRepo struct {
	db *pgxpool.Pool
}

func NewTransactionRepo(db *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{db: db}
}

const txnColumns = `id, merchant_id, type, phone, amount,
	checkout_request_id, merchant_request_id, conversation_id, receipt,
	status, result_desc, request_payload, response_payload, callback_payload,
	created_at, updated_at`

func (r *TransactionRepo) Create(ctx context.Context, t *transaction.Transaction) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO mpesa_transactions (
			merchant_id, type, phone, amount,
			checkout_request_id, merchant_request_id, conversation_id, receipt,
			status, result_desc, request_payload, response_payload, callback_payload
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at, updated_at`,
		nilIfZero(t.MerchantID), string(t.Type), nullable(t.Phone), t.Amount,
		nullable(t.CheckoutRequestID), nullable(t.MerchantRequestID),
		nullable(t.ConversationID), nullable(t.Receipt),
		string(t.Status), nullable(t.ResultDesc),
		t.RequestPayload, t.ResponsePayload, t.CallbackPayload,
	)
	return row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TransactionRepo) FindByID(ctx context.Context, id int64) (*transaction.Transaction, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM mpesa_transactions WHERE id=$1`, id)
	return scanTransaction(row)
}

func (r *TransactionRepo) FindByCorrelationID(ctx context.Context, kind transaction.CorrelationKind, id string) (*transaction.Transaction, error) {
	col, err := correlationColumn(kind)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM mpesa_transactions WHERE %s=$1 ORDER BY id DESC LIMIT 1`,
		txnColumns, col), id)
	return scanTransaction(row)
}

func (r *TransactionRepo) Update(ctx context.Context, id int64, u transaction.Update) (*transaction.Transaction, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE mpesa_transactions SET
			status              = COALESCE($2, status),
			phone               = COALESCE($3, phone),
			amount              = COALESCE($4, amount),
			checkout_request_id = COALESCE($5, checkout_request_id),
			merchant_request_id = COALESCE($6, merchant_request_id),
			conversation_id     = COALESCE($7, conversation_id),
			receipt             = COALESCE($8, receipt),
			result_desc         = COALESCE($9, result_desc),
			response_payload    = COALESCE($10, response_payload),
			callback_payload    = COALESCE($11, callback_payload),
			updated_at          = now()
		WHERE id=$1
		RETURNING `+txnColumns,
		id,
		(*string)(u.Status), u.Phone, u.Amount,
		u.CheckoutRequestID, u.MerchantRequestID, u.ConversationID, u.Receipt,
		u.ResultDesc, u.ResponsePayload, u.CallbackPayload,
	)
	return scanTransaction(row)
}

func (r *TransactionRepo) List(ctx context.Context, merchantID int64, limit, offset int) ([]*transaction.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+txnColumns+`
		  FROM mpesa_transactions
		 WHERE ($1 = 0 OR merchant_id = $1)
		 ORDER BY id DESC
		 LIMIT $2 OFFSET $3`,
		merchantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func correlationColumn(kind transaction.CorrelationKind) (string, error) {
	switch kind {
	case transaction.ByCheckoutID:
		return "checkout_request_id", nil
	case transaction.ByConversationID:
		return "conversation_id", nil
	case transaction.ByReceipt:
		return "receipt", nil
	}
	return "", fmt.Errorf("unknown correlation kind %q", kind)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTransaction(row scannable) (*transaction.Transaction, error) {
	var (
		t                                       transaction.Transaction
		typ, status                             string
		merchantID                              *int64
		phone, checkout, merchReq, conv         *string
		receipt, resultDesc                     *string
	)
	err := row.Scan(
		&t.ID, &merchantID, &typ, &phone, &t.Amount,
		&checkout, &merchReq, &conv, &receipt,
		&status, &resultDesc,
		&t.RequestPayload, &t.ResponsePayload, &t.CallbackPayload,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Type = transaction.Type(typ)
	t.Status = transaction.Status(status)
	if merchantID != nil {
		t.MerchantID = *merchantID
	}
	t.Phone = deref(phone)
	t.CheckoutRequestID = deref(checkout)
	t.MerchantRequestID = deref(merchReq)
	t.ConversationID = deref(conv)
	t.Receipt = deref(receipt)
	t.ResultDesc = deref(resultDesc)
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nilIfZero(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

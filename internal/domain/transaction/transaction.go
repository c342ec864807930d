package transaction

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"    // created, synchronous call not yet acknowledged
	StatusProcessing Status = "processing" // upstream accepted, waiting for the async result
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
)

// Terminal reports whether s is a final state. Writes past a terminal state
// are not prevented; last write wins.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusTimeout
}

type Type string

const (
	TypeSTK Type = "stk" // push payment (Lipa na M-Pesa online)
	TypeC2B Type = "c2b" // direct collection, no prior local record
	TypeB2C Type = "b2c" // disbursement to a person
	TypeB2B Type = "b2b" // disbursement to a business
)

// CorrelationKind names the provider-issued identifier a transaction can be
// looked up by. Checkout ids come back synchronously on STK initiation,
// conversation ids on disbursement initiation, receipts only with callbacks.
type CorrelationKind string

const (
	ByCheckoutID     CorrelationKind = "checkout_request_id"
	ByConversationID CorrelationKind = "conversation_id"
	ByReceipt        CorrelationKind = "receipt"
)

// Transaction is the lifecycle record for one payment attempt. The JSON
// shape is what the listing and status endpoints return.
type Transaction struct {
	ID         int64 `json:"id"`
	MerchantID int64 `json:"merchant_id,omitempty"`
	Type       Type  `json:"type"`
	// Phone is the counterparty msisdn; empty for b2b, whose receiver
	// shortcode lives in the request payload.
	Phone  string `json:"phone,omitempty"`
	Amount int64  `json:"amount"` // whole shillings; Daraja rejects fractional amounts

	// Correlation identifiers, each absent until the provider issues it.
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
	MerchantRequestID string `json:"merchant_request_id,omitempty"` // originator conversation id for b2c/b2b
	ConversationID    string `json:"conversation_id,omitempty"`
	Receipt           string `json:"receipt,omitempty"` // MpesaReceiptNumber / TransID / TransactionReceipt

	Status          Status          `json:"status"`
	ResultDesc      string          `json:"result_desc,omitempty"`
	RequestPayload  json.RawMessage `json:"-"`
	ResponsePayload json.RawMessage `json:"-"`
	CallbackPayload json.RawMessage `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update is a field-level patch applied by Store.Update. Nil pointers leave
// the stored value untouched.
type Update struct {
	Status            *Status
	Phone             *string
	Amount            *int64
	CheckoutRequestID *string
	MerchantRequestID *string
	ConversationID    *string
	Receipt           *string
	ResultDesc        *string
	ResponsePayload   json.RawMessage
	CallbackPayload   json.RawMessage
}

func (u *Update) SetStatus(s Status) *Update            { u.Status = &s; return u }
func (u *Update) SetPhone(p string) *Update             { u.Phone = &p; return u }
func (u *Update) SetAmount(a int64) *Update             { u.Amount = &a; return u }
func (u *Update) SetCheckoutRequestID(v string) *Update { u.CheckoutRequestID = &v; return u }
func (u *Update) SetMerchantRequestID(v string) *Update { u.MerchantRequestID = &v; return u }
func (u *Update) SetConversationID(v string) *Update    { u.ConversationID = &v; return u }
func (u *Update) SetReceipt(v string) *Update           { u.Receipt = &v; return u }
func (u *Update) SetResultDesc(v string) *Update        { u.ResultDesc = &v; return u }

// CorrelationValue returns the identifier of the given kind, if set.
func (t *Transaction) CorrelationValue(kind CorrelationKind) string {
	switch kind {
	case ByCheckoutID:
		return t.CheckoutRequestID
	case ByConversationID:
		return t.ConversationID
	case ByReceipt:
		return t.Receipt
	}
	return ""
}

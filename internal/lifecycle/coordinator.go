package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"mpesagw/internal/config"
	"mpesagw/internal/daraja"
	"mpesagw/internal/domain/merchant"
	"mpesagw/internal/domain/transaction"
	"mpesagw/internal/store"
)

// Gateway is the outbound Daraja surface the coordinator drives. Satisfied by
// *daraja.Client; tests substitute a fake.
type Gateway interface {
	STKPush(ctx context.Context, cred daraja.Credentials, p daraja.STKPushParams) *daraja.Ack
	STKQuery(ctx context.Context, cred daraja.Credentials, checkoutRequestID string) *daraja.Ack
	B2C(ctx context.Context, cred daraja.Credentials, p daraja.B2CParams) *daraja.Ack
	B2B(ctx context.Context, cred daraja.Credentials, p daraja.B2BParams) *daraja.Ack
	RegisterURLs(ctx context.Context, cred daraja.Credentials, shortcode, confirmationURL, validationURL string) *daraja.Ack
	TransactionStatus(ctx context.Context, cred daraja.Credentials, p daraja.StatusParams) *daraja.Ack
	AccountBalance(ctx context.Context, cred daraja.Credentials, remarks, resultURL, timeoutURL string) *daraja.Ack
	Reversal(ctx context.Context, cred daraja.Credentials, p daraja.ReversalParams) *daraja.Ack
}

// InitiationError reports an initiation that obtained no success
// acknowledgment. Unreachable distinguishes transport failures from explicit
// upstream rejections for logging; the state machine treats both the same.
type InitiationError struct {
	TransactionID int64
	Message       string
	Unreachable   bool
}

func (e *InitiationError) Error() string { return e.Message }

// InitiationResult is returned when the upstream accepted the request.
type InitiationResult struct {
	Transaction *transaction.Transaction
	Ack         *daraja.Ack
}

// Coordinator owns the transaction state machine: it creates pending records,
// applies the synchronous acknowledgment, and reconciles asynchronous
// callbacks against the originating record.
type Coordinator struct {
	store store.TransactionStore
	gw    Gateway
	urls  config.CallbackURLs
}

func New(s store.TransactionStore, gw Gateway, urls config.CallbackURLs) *Coordinator {
	return &Coordinator{store: s, gw: gw, urls: urls}
}

func credentials(m *merchant.Merchant) daraja.Credentials {
	return daraja.Credentials{
		Shortcode:          m.Shortcode,
		ConsumerKey:        m.ConsumerKey,
		ConsumerSecret:     m.ConsumerSecret,
		Passkey:            m.Passkey,
		InitiatorName:      m.InitiatorName,
		SecurityCredential: m.SecurityCredential,
	}
}

type STKPushInput struct {
	Phone          string
	Amount         int64
	AccountRef     string
	Description    string
	RequestPayload json.RawMessage
}

// InitiateSTKPush creates a pending record, asks Daraja to prompt the payer,
// and applies the synchronous acknowledgment: processing with the checkout id
// on success, failed otherwise.
func (c *Coordinator) InitiateSTKPush(ctx context.Context, m *merchant.Merchant, in STKPushInput) (*InitiationResult, error) {
	txn := &transaction.Transaction{
		MerchantID:     m.ID,
		Type:           transaction.TypeSTK,
		Phone:          in.Phone,
		Amount:         in.Amount,
		Status:         transaction.StatusPending,
		RequestPayload: in.RequestPayload,
	}
	if err := c.store.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	accountRef := in.AccountRef
	if accountRef == "" {
		accountRef = fmt.Sprintf("TXN-%d", txn.ID)
	}
	description := in.Description
	if description == "" {
		description = "Payment"
	}

	ack := c.gw.STKPush(ctx, credentials(m), daraja.STKPushParams{
		Phone:       in.Phone,
		Amount:      in.Amount,
		AccountRef:  accountRef,
		Description: description,
		CallbackURL: c.urls.STKCallback,
	})
	if !ack.OK() {
		return nil, c.failInitiation(ctx, txn, ack, "stk push")
	}

	u := transaction.Update{ResponsePayload: ack.Raw}
	u.SetStatus(transaction.StatusProcessing).
		SetCheckoutRequestID(ack.CheckoutRequestID).
		SetMerchantRequestID(ack.MerchantRequestID)
	updated, err := c.store.Update(ctx, txn.ID, u)
	if err != nil {
		return nil, fmt.Errorf("record acknowledgment: %w", err)
	}

	log.Info().
		Int64("transaction_id", updated.ID).
		Str("checkout_request_id", updated.CheckoutRequestID).
		Str("phone", in.Phone).
		Int64("amount", in.Amount).
		Msg("stk push initiated")
	return &InitiationResult{Transaction: updated, Ack: ack}, nil
}

type B2CInput struct {
	Phone          string
	Amount         int64
	CommandID      string
	Remarks        string
	RequestPayload json.RawMessage
}

// InitiateB2C disburses to a person. The conversation id from the
// acknowledgment becomes the correlation identifier for the later result.
func (c *Coordinator) InitiateB2C(ctx context.Context, m *merchant.Merchant, in B2CInput) (*InitiationResult, error) {
	txn := &transaction.Transaction{
		MerchantID:     m.ID,
		Type:           transaction.TypeB2C,
		Phone:          in.Phone,
		Amount:         in.Amount,
		Status:         transaction.StatusPending,
		RequestPayload: in.RequestPayload,
	}
	if err := c.store.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	remarks := in.Remarks
	if remarks == "" {
		remarks = "B2C Payment"
	}
	ack := c.gw.B2C(ctx, credentials(m), daraja.B2CParams{
		Phone:      in.Phone,
		Amount:     in.Amount,
		CommandID:  in.CommandID,
		Remarks:    remarks,
		ResultURL:  c.urls.B2CResult,
		TimeoutURL: c.urls.B2CTimeout,
	})
	if !ack.OK() {
		return nil, c.failInitiation(ctx, txn, ack, "b2c")
	}
	return c.acceptDisbursement(ctx, txn, ack)
}

type B2BInput struct {
	ReceiverShortcode string
	Amount            int64
	CommandID         string
	Remarks           string
	RequestPayload    json.RawMessage
}

// InitiateB2B disburses to another business. No counterparty phone exists;
// the receiver shortcode lives in the request payload.
func (c *Coordinator) InitiateB2B(ctx context.Context, m *merchant.Merchant, in B2BInput) (*InitiationResult, error) {
	txn := &transaction.Transaction{
		MerchantID:     m.ID,
		Type:           transaction.TypeB2B,
		Amount:         in.Amount,
		Status:         transaction.StatusPending,
		RequestPayload: in.RequestPayload,
	}
	if err := c.store.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	remarks := in.Remarks
	if remarks == "" {
		remarks = "B2B Payment"
	}
	ack := c.gw.B2B(ctx, credentials(m), daraja.B2BParams{
		ReceiverShortcode: in.ReceiverShortcode,
		Amount:            in.Amount,
		CommandID:         in.CommandID,
		Remarks:           remarks,
		ResultURL:         c.urls.B2BResult,
		TimeoutURL:        c.urls.B2BTimeout,
	})
	if !ack.OK() {
		return nil, c.failInitiation(ctx, txn, ack, "b2b")
	}
	return c.acceptDisbursement(ctx, txn, ack)
}

func (c *Coordinator) acceptDisbursement(ctx context.Context, txn *transaction.Transaction, ack *daraja.Ack) (*InitiationResult, error) {
	u := transaction.Update{ResponsePayload: ack.Raw}
	u.SetStatus(transaction.StatusProcessing).
		SetConversationID(ack.ConversationID).
		SetMerchantRequestID(ack.OriginatorConversationID)
	updated, err := c.store.Update(ctx, txn.ID, u)
	if err != nil {
		return nil, fmt.Errorf("record acknowledgment: %w", err)
	}
	log.Info().
		Int64("transaction_id", updated.ID).
		Str("type", string(updated.Type)).
		Str("conversation_id", updated.ConversationID).
		Int64("amount", updated.Amount).
		Msg("disbursement initiated")
	return &InitiationResult{Transaction: updated, Ack: ack}, nil
}

// failInitiation marks the record failed, keeping whatever response was
// obtained (including the synthetic error shape) for audit.
func (c *Coordinator) failInitiation(ctx context.Context, txn *transaction.Transaction, ack *daraja.Ack, op string) error {
	msg := ack.Failure()
	u := transaction.Update{ResponsePayload: ack.Raw}
	u.SetStatus(transaction.StatusFailed).SetResultDesc(msg)
	if _, err := c.store.Update(ctx, txn.ID, u); err != nil {
		log.Error().Err(err).Int64("transaction_id", txn.ID).Msg("failed to record rejected initiation")
	}

	unreachable := ack.Err != ""
	evt := log.Error().
		Int64("transaction_id", txn.ID).
		Str("operation", op).
		Str("reason", msg)
	if unreachable {
		evt.Msg("upstream unreachable")
	} else {
		evt.Msg("upstream rejected initiation")
	}
	return &InitiationError{TransactionID: txn.ID, Message: msg, Unreachable: unreachable}
}

// StatusSnapshot pairs an upstream status-query acknowledgment with the local
// record, when one exists.
type StatusSnapshot struct {
	Ack   *daraja.Ack
	Local *transaction.Transaction
}

// STKStatus queries the upstream for a checkout id and returns the local
// record alongside.
func (c *Coordinator) STKStatus(ctx context.Context, m *merchant.Merchant, checkoutRequestID string) (*StatusSnapshot, error) {
	ack := c.gw.STKQuery(ctx, credentials(m), checkoutRequestID)
	local, err := c.store.FindByCorrelationID(ctx, transaction.ByCheckoutID, checkoutRequestID)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}
	return &StatusSnapshot{Ack: ack, Local: local}, nil
}

// TransactionStatus issues an upstream transaction-status query; the result
// arrives later on the status result callback URL.
func (c *Coordinator) TransactionStatus(ctx context.Context, m *merchant.Merchant, transactionID, remarks string) *daraja.Ack {
	return c.gw.TransactionStatus(ctx, credentials(m), daraja.StatusParams{
		TransactionID: transactionID,
		Remarks:       remarks,
		ResultURL:     c.urls.StatusResult,
		TimeoutURL:    c.urls.StatusTimeout,
	})
}

// AccountBalance issues an upstream balance query.
func (c *Coordinator) AccountBalance(ctx context.Context, m *merchant.Merchant, remarks string) *daraja.Ack {
	return c.gw.AccountBalance(ctx, credentials(m), remarks, c.urls.BalanceResult, c.urls.BalanceTimeout)
}

type ReversalInput struct {
	TransactionID string
	Amount        int64
	Remarks       string
}

// Reverse asks the upstream to reverse a settled transaction.
func (c *Coordinator) Reverse(ctx context.Context, m *merchant.Merchant, in ReversalInput) *daraja.Ack {
	return c.gw.Reversal(ctx, credentials(m), daraja.ReversalParams{
		TransactionID: in.TransactionID,
		Amount:        in.Amount,
		Remarks:       in.Remarks,
		ResultURL:     c.urls.ReversalResult,
		TimeoutURL:    c.urls.ReversalTimeout,
	})
}

// RegisterURLs registers the C2B validation/confirmation URLs for a
// shortcode. One-time admin operation, not part of the hot path.
func (c *Coordinator) RegisterURLs(ctx context.Context, m *merchant.Merchant, shortcode string) *daraja.Ack {
	if shortcode == "" {
		shortcode = m.Shortcode
	}
	return c.gw.RegisterURLs(ctx, credentials(m), shortcode, c.urls.C2BConfirmation, c.urls.C2BValidation)
}

// ReconcileSTKCallback applies a push-payment result to the originating
// record, or creates one directly in the terminal state when no initiation
// record exists. Redelivery re-applies the same update; lookup is by
// checkout id, so no duplicate rows are possible.
func (c *Coordinator) ReconcileSTKCallback(ctx context.Context, cb daraja.STKCallback, raw json.RawMessage) error {
	status := transaction.StatusFailed
	if cb.ResultCode == 0 {
		status = transaction.StatusSuccess
	}

	u := transaction.Update{CallbackPayload: raw}
	u.SetStatus(status).
		SetMerchantRequestID(cb.MerchantRequestID).
		SetResultDesc(cb.ResultDesc)

	var phone string
	var amount int64
	if status == transaction.StatusSuccess {
		got := extract(itemPairs(cb.CallbackMetadata.Item), "MpesaReceiptNumber", "Amount", "PhoneNumber")
		if v, ok := got["MpesaReceiptNumber"]; ok {
			u.SetReceipt(asString(v))
		}
		if v, ok := got["Amount"]; ok {
			if a, ok := asAmount(v); ok {
				amount = a
				u.SetAmount(a)
			}
		}
		if v, ok := got["PhoneNumber"]; ok {
			phone = asString(v)
			u.SetPhone(phone)
		}
	}

	txn, err := c.store.FindByCorrelationID(ctx, transaction.ByCheckoutID, cb.CheckoutRequestID)
	switch {
	case err == nil:
		_, err = c.store.Update(ctx, txn.ID, u)
		if err != nil {
			return fmt.Errorf("apply stk callback: %w", err)
		}
	case err == store.ErrNotFound:
		// Initiation never ran locally; keep the financial event anyway.
		fresh := &transaction.Transaction{
			Type:              transaction.TypeSTK,
			Phone:             phone,
			Amount:            amount,
			CheckoutRequestID: cb.CheckoutRequestID,
			MerchantRequestID: cb.MerchantRequestID,
			Status:            status,
			ResultDesc:        cb.ResultDesc,
			CallbackPayload:   raw,
		}
		if u.Receipt != nil {
			fresh.Receipt = *u.Receipt
		}
		if err := c.store.Create(ctx, fresh); err != nil {
			return fmt.Errorf("create from stk callback: %w", err)
		}
	default:
		return fmt.Errorf("lookup stk callback: %w", err)
	}

	log.Info().
		Str("checkout_request_id", cb.CheckoutRequestID).
		Int("result_code", cb.ResultCode).
		Str("status", string(status)).
		Msg("stk callback reconciled")
	return nil
}

// RecordC2BConfirmation records a direct collection. There is no prior local
// record for these; the provider receipt keys the upsert so redelivered
// confirmations cannot duplicate a collection.
func (c *Coordinator) RecordC2BConfirmation(ctx context.Context, cb daraja.C2BConfirmation, raw json.RawMessage) error {
	amount, _ := asAmount(cb.TransAmount)

	if txn, err := c.store.FindByCorrelationID(ctx, transaction.ByReceipt, cb.TransID); err == nil {
		u := transaction.Update{CallbackPayload: raw}
		u.SetStatus(transaction.StatusSuccess).
			SetPhone(cb.MSISDN).
			SetAmount(amount).
			SetMerchantRequestID(cb.BillRefNumber)
		if _, err := c.store.Update(ctx, txn.ID, u); err != nil {
			return fmt.Errorf("apply c2b confirmation: %w", err)
		}
		return nil
	} else if err != store.ErrNotFound {
		return fmt.Errorf("lookup c2b confirmation: %w", err)
	}

	txn := &transaction.Transaction{
		Type:              transaction.TypeC2B,
		Phone:             cb.MSISDN,
		Amount:            amount,
		Receipt:           cb.TransID,
		MerchantRequestID: cb.BillRefNumber,
		Status:            transaction.StatusSuccess,
		CallbackPayload:   raw,
	}
	if err := c.store.Create(ctx, txn); err != nil {
		return fmt.Errorf("create from c2b confirmation: %w", err)
	}
	log.Info().
		Str("receipt", cb.TransID).
		Str("bill_ref", cb.BillRefNumber).
		Int64("amount", amount).
		Msg("c2b collection recorded")
	return nil
}

// ReconcileResult applies a disbursement result (B2C or B2B) to the
// originating record via its conversation id, creating one in the terminal
// state when no initiation record exists.
func (c *Coordinator) ReconcileResult(ctx context.Context, typ transaction.Type, res daraja.Result, raw json.RawMessage) error {
	status := transaction.StatusFailed
	if res.ResultCode == 0 {
		status = transaction.StatusSuccess
	}
	return c.applyResult(ctx, typ, res, raw, status)
}

// ReconcileTimeout handles the queue-timeout callback, which reports the
// provider-side timeout explicitly rather than via a result code.
func (c *Coordinator) ReconcileTimeout(ctx context.Context, typ transaction.Type, res daraja.Result, raw json.RawMessage) error {
	return c.applyResult(ctx, typ, res, raw, transaction.StatusTimeout)
}

func (c *Coordinator) applyResult(ctx context.Context, typ transaction.Type, res daraja.Result, raw json.RawMessage, status transaction.Status) error {
	u := transaction.Update{CallbackPayload: raw}
	u.SetStatus(status).
		SetMerchantRequestID(res.OriginatorConversationID).
		SetResultDesc(res.ResultDesc)

	receipt := res.TransactionID
	var phone string
	var amount int64
	var haveAmount bool
	got := extract(paramPairs(res.ResultParameters.ResultParameter),
		"TransactionReceipt", "TransactionAmount", "ReceiverPartyPublicName")
	if v, ok := got["TransactionReceipt"]; ok {
		receipt = asString(v)
	}
	if v, ok := got["TransactionAmount"]; ok {
		if a, ok := asAmount(v); ok {
			amount, haveAmount = a, true
		}
	}
	if v, ok := got["ReceiverPartyPublicName"]; ok {
		phone = asString(v)
	}
	if receipt != "" {
		u.SetReceipt(receipt)
	}
	if haveAmount {
		u.SetAmount(amount)
	}
	if phone != "" {
		u.SetPhone(phone)
	}

	txn, err := c.store.FindByCorrelationID(ctx, transaction.ByConversationID, res.ConversationID)
	switch {
	case err == nil:
		if _, err := c.store.Update(ctx, txn.ID, u); err != nil {
			return fmt.Errorf("apply %s result: %w", typ, err)
		}
	case err == store.ErrNotFound:
		fresh := &transaction.Transaction{
			Type:              typ,
			Phone:             phone,
			Amount:            amount,
			ConversationID:    res.ConversationID,
			MerchantRequestID: res.OriginatorConversationID,
			Receipt:           receipt,
			Status:            status,
			ResultDesc:        res.ResultDesc,
			CallbackPayload:   raw,
		}
		if err := c.store.Create(ctx, fresh); err != nil {
			return fmt.Errorf("create from %s result: %w", typ, err)
		}
	default:
		return fmt.Errorf("lookup %s result: %w", typ, err)
	}

	log.Info().
		Str("type", string(typ)).
		Str("conversation_id", res.ConversationID).
		Int("result_code", res.ResultCode).
		Str("status", string(status)).
		Msg("disbursement callback reconciled")
	return nil
}

package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpesagw/internal/config"
	"mpesagw/internal/daraja"
	"mpesagw/internal/domain/merchant"
	"mpesagw/internal/domain/transaction"
	"mpesagw/internal/store"
	"mpesagw/internal/store/memory"
)

// fakeGateway returns canned acknowledgments and records what it was asked.
type fakeGateway struct {
	ack           *daraja.Ack
	lastSTK       daraja.STKPushParams
	lastB2C       daraja.B2CParams
	lastB2B       daraja.B2BParams
	lastShortcode string
	calls         int
}

func (f *fakeGateway) answer() *daraja.Ack {
	f.calls++
	return f.ack
}

func (f *fakeGateway) STKPush(_ context.Context, _ daraja.Credentials, p daraja.STKPushParams) *daraja.Ack {
	f.lastSTK = p
	return f.answer()
}
func (f *fakeGateway) STKQuery(context.Context, daraja.Credentials, string) *daraja.Ack {
	return f.answer()
}
func (f *fakeGateway) B2C(_ context.Context, _ daraja.Credentials, p daraja.B2CParams) *daraja.Ack {
	f.lastB2C = p
	return f.answer()
}
func (f *fakeGateway) B2B(_ context.Context, _ daraja.Credentials, p daraja.B2BParams) *daraja.Ack {
	f.lastB2B = p
	return f.answer()
}
func (f *fakeGateway) RegisterURLs(_ context.Context, _ daraja.Credentials, shortcode, _, _ string) *daraja.Ack {
	f.lastShortcode = shortcode
	return f.answer()
}
func (f *fakeGateway) TransactionStatus(context.Context, daraja.Credentials, daraja.StatusParams) *daraja.Ack {
	return f.answer()
}
func (f *fakeGateway) AccountBalance(context.Context, daraja.Credentials, string, string, string) *daraja.Ack {
	return f.answer()
}
func (f *fakeGateway) Reversal(context.Context, daraja.Credentials, daraja.ReversalParams) *daraja.Ack {
	return f.answer()
}

func acceptedAck(extra map[string]string) *daraja.Ack {
	ack := &daraja.Ack{
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
	}
	for k, v := range extra {
		switch k {
		case "CheckoutRequestID":
			ack.CheckoutRequestID = v
		case "MerchantRequestID":
			ack.MerchantRequestID = v
		case "ConversationID":
			ack.ConversationID = v
		case "OriginatorConversationID":
			ack.OriginatorConversationID = v
		}
	}
	ack.Raw, _ = json.Marshal(ack)
	return ack
}

func rejectedAck(msg string) *daraja.Ack {
	ack := &daraja.Ack{ErrorCode: "400.002.02", ErrorMessage: msg}
	ack.Raw, _ = json.Marshal(ack)
	return ack
}

func testURLs() config.CallbackURLs {
	cfg := config.Cfg{App: config.AppCfg{CallbackBaseURL: "https://pay.example.com"}}
	return cfg.Callbacks()
}

func newFixture(ack *daraja.Ack) (*Coordinator, *memory.Store, *fakeGateway) {
	st := memory.New()
	gw := &fakeGateway{ack: ack}
	return New(st, gw, testURLs()), st, gw
}

var m = &merchant.Merchant{ID: 1, Shortcode: "174379", ConsumerKey: "k", ConsumerSecret: "s"}

func TestInitiateSTKPushAccepted(t *testing.T) {
	coord, st, gw := newFixture(acceptedAck(map[string]string{
		"CheckoutRequestID": "ws_CO_1",
		"MerchantRequestID": "29115-1",
	}))

	res, err := coord.InitiateSTKPush(context.Background(), m, STKPushInput{
		Phone: "254712345678", Amount: 100,
	})
	require.NoError(t, err)

	txn := res.Transaction
	assert.Equal(t, transaction.StatusProcessing, txn.Status)
	assert.Equal(t, "ws_CO_1", txn.CheckoutRequestID)
	assert.Equal(t, "29115-1", txn.MerchantRequestID)
	assert.NotEmpty(t, txn.ResponsePayload)

	// Defaults applied on the wire request.
	assert.Equal(t, "TXN-1", gw.lastSTK.AccountRef)
	assert.Equal(t, "Payment", gw.lastSTK.Description)
	assert.Equal(t, testURLs().STKCallback, gw.lastSTK.CallbackURL)

	stored, err := st.FindByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusProcessing, stored.Status)
}

func TestInitiateSTKPushRejected(t *testing.T) {
	coord, st, _ := newFixture(rejectedAck("Insufficient balance"))

	_, err := coord.InitiateSTKPush(context.Background(), m, STKPushInput{
		Phone: "254712345678", Amount: 100,
	})
	var ie *InitiationError
	require.ErrorAs(t, err, &ie)
	assert.False(t, ie.Unreachable)
	assert.Equal(t, "Insufficient balance", ie.Message)

	// The record persists in failed state with the rejection recorded.
	stored, err := st.FindByID(context.Background(), ie.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, stored.Status)
	assert.Equal(t, "Insufficient balance", stored.ResultDesc)
}

func TestInitiateSTKPushUnreachable(t *testing.T) {
	coord, _, _ := newFixture(&daraja.Ack{
		Err: "connection refused",
		Raw: json.RawMessage(`{"error":"connection refused"}`),
	})

	_, err := coord.InitiateSTKPush(context.Background(), m, STKPushInput{
		Phone: "254712345678", Amount: 100,
	})
	var ie *InitiationError
	require.ErrorAs(t, err, &ie)
	assert.True(t, ie.Unreachable)
}

func TestInitiateB2CAccepted(t *testing.T) {
	coord, _, gw := newFixture(acceptedAck(map[string]string{
		"ConversationID":           "AG_1",
		"OriginatorConversationID": "10571-1",
	}))

	res, err := coord.InitiateB2C(context.Background(), m, B2CInput{Phone: "254700000001", Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusProcessing, res.Transaction.Status)
	assert.Equal(t, "AG_1", res.Transaction.ConversationID)
	assert.Equal(t, "B2C Payment", gw.lastB2C.Remarks)
	assert.Equal(t, testURLs().B2CResult, gw.lastB2C.ResultURL)
	assert.Equal(t, testURLs().B2CTimeout, gw.lastB2C.TimeoutURL)
}

func TestInitiateB2BHasNoPhone(t *testing.T) {
	coord, st, gw := newFixture(acceptedAck(map[string]string{"ConversationID": "AG_2"}))

	res, err := coord.InitiateB2B(context.Background(), m, B2BInput{ReceiverShortcode: "600000", Amount: 1000})
	require.NoError(t, err)
	assert.Empty(t, res.Transaction.Phone)
	assert.Equal(t, "600000", gw.lastB2B.ReceiverShortcode)

	stored, err := st.FindByCorrelationID(context.Background(), transaction.ByConversationID, "AG_2")
	require.NoError(t, err)
	assert.Equal(t, transaction.TypeB2B, stored.Type)
}

func stkCallback(checkoutID string, resultCode int, items []daraja.Item) (daraja.STKCallback, json.RawMessage) {
	cb := daraja.STKCallback{
		MerchantRequestID: "29115-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        resultCode,
		ResultDesc:        "desc",
	}
	cb.CallbackMetadata.Item = items
	raw, _ := json.Marshal(map[string]any{"Body": map[string]any{"stkCallback": cb}})
	return cb, raw
}

func TestReconcileSTKCallbackSuccess(t *testing.T) {
	coord, st, _ := newFixture(acceptedAck(map[string]string{"CheckoutRequestID": "ws_CO_1"}))

	res, err := coord.InitiateSTKPush(context.Background(), m, STKPushInput{Phone: "254712345678", Amount: 100})
	require.NoError(t, err)

	cb, raw := stkCallback("ws_CO_1", 0, []daraja.Item{
		{Name: "MpesaReceiptNumber", Value: "ABC123"},
		{Name: "Amount", Value: 100.0},
		{Name: "PhoneNumber", Value: 254712345678.0},
	})
	require.NoError(t, coord.ReconcileSTKCallback(context.Background(), cb, raw))

	stored, err := st.FindByID(context.Background(), res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, stored.Status)
	assert.Equal(t, "ABC123", stored.Receipt)
	assert.Equal(t, "254712345678", stored.Phone)
	assert.Equal(t, int64(100), stored.Amount)
	assert.JSONEq(t, string(raw), string(stored.CallbackPayload))
}

func TestReconcileSTKCallbackFailureKeepsNoReceipt(t *testing.T) {
	coord, st, _ := newFixture(acceptedAck(map[string]string{"CheckoutRequestID": "ws_CO_2"}))

	res, err := coord.InitiateSTKPush(context.Background(), m, STKPushInput{Phone: "254712345678", Amount: 100})
	require.NoError(t, err)

	cb, raw := stkCallback("ws_CO_2", 1032, nil)
	require.NoError(t, coord.ReconcileSTKCallback(context.Background(), cb, raw))

	stored, err := st.FindByID(context.Background(), res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, stored.Status)
	assert.Empty(t, stored.Receipt)
}

func TestReconcileSTKCallbackIsIdempotent(t *testing.T) {
	coord, st, _ := newFixture(acceptedAck(map[string]string{"CheckoutRequestID": "ws_CO_3"}))

	_, err := coord.InitiateSTKPush(context.Background(), m, STKPushInput{Phone: "254712345678", Amount: 100})
	require.NoError(t, err)

	cb, raw := stkCallback("ws_CO_3", 0, []daraja.Item{{Name: "MpesaReceiptNumber", Value: "ABC123"}})
	require.NoError(t, coord.ReconcileSTKCallback(context.Background(), cb, raw))
	require.NoError(t, coord.ReconcileSTKCallback(context.Background(), cb, raw))

	all, err := st.List(context.Background(), 0, 100, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1, "redelivery must not create a second record")
	assert.Equal(t, transaction.StatusSuccess, all[0].Status)
}

func TestReconcileSTKCallbackCreatesWhenUnknown(t *testing.T) {
	coord, st, _ := newFixture(nil)

	cb, raw := stkCallback("ws_CO_unknown", 0, []daraja.Item{
		{Name: "MpesaReceiptNumber", Value: "XYZ789"},
		{Name: "Amount", Value: 50.0},
	})
	require.NoError(t, coord.ReconcileSTKCallback(context.Background(), cb, raw))

	stored, err := st.FindByCorrelationID(context.Background(), transaction.ByCheckoutID, "ws_CO_unknown")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, stored.Status)
	assert.Equal(t, "XYZ789", stored.Receipt)
	assert.Equal(t, int64(50), stored.Amount)
}

func disbursementResult(conversationID string, code int, params []daraja.ResultParameter) (daraja.Result, json.RawMessage) {
	res := daraja.Result{
		ResultCode:               code,
		ResultDesc:               "desc",
		OriginatorConversationID: "10571-1",
		ConversationID:           conversationID,
		TransactionID:            "SAF999",
	}
	res.ResultParameters.ResultParameter = params
	raw, _ := json.Marshal(map[string]any{"Result": res})
	return res, raw
}

func TestReconcileResultAppliesToInitiatedB2C(t *testing.T) {
	coord, st, _ := newFixture(acceptedAck(map[string]string{"ConversationID": "AG_10"}))

	initiated, err := coord.InitiateB2C(context.Background(), m, B2CInput{Phone: "254700000001", Amount: 500})
	require.NoError(t, err)

	res, raw := disbursementResult("AG_10", 0, []daraja.ResultParameter{
		{Key: "TransactionReceipt", Value: "SAF999"},
		{Key: "TransactionAmount", Value: 500.0},
		{Key: "ReceiverPartyPublicName", Value: "254700000001 - JANE DOE"},
	})
	require.NoError(t, coord.ReconcileResult(context.Background(), transaction.TypeB2C, res, raw))

	stored, err := st.FindByID(context.Background(), initiated.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, stored.Status)
	assert.Equal(t, "SAF999", stored.Receipt)
}

func TestReconcileResultFailureCreatesWhenUnknown(t *testing.T) {
	coord, st, _ := newFixture(nil)

	res, raw := disbursementResult("AG_missing", 1, nil)
	require.NoError(t, coord.ReconcileResult(context.Background(), transaction.TypeB2C, res, raw))

	stored, err := st.FindByCorrelationID(context.Background(), transaction.ByConversationID, "AG_missing")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, stored.Status)
	assert.Equal(t, transaction.TypeB2C, stored.Type)
}

func TestReconcileTimeoutSetsTimeoutStatus(t *testing.T) {
	coord, st, _ := newFixture(acceptedAck(map[string]string{"ConversationID": "AG_11"}))

	initiated, err := coord.InitiateB2B(context.Background(), m, B2BInput{ReceiverShortcode: "600000", Amount: 200})
	require.NoError(t, err)

	res, raw := disbursementResult("AG_11", 0, nil)
	require.NoError(t, coord.ReconcileTimeout(context.Background(), transaction.TypeB2B, res, raw))

	stored, err := st.FindByID(context.Background(), initiated.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusTimeout, stored.Status)
}

func TestRecordC2BConfirmationUpsertsByReceipt(t *testing.T) {
	coord, st, _ := newFixture(nil)

	cb := daraja.C2BConfirmation{
		TransID:       "SAF12345",
		TransAmount:   "250.00",
		BillRefNumber: "INV-9",
		MSISDN:        "254712345678",
	}
	raw, _ := json.Marshal(cb)
	require.NoError(t, coord.RecordC2BConfirmation(context.Background(), cb, raw))
	require.NoError(t, coord.RecordC2BConfirmation(context.Background(), cb, raw))

	all, err := st.List(context.Background(), 0, 100, 0)
	require.NoError(t, err)
	require.Len(t, all, 1, "redelivered confirmation must not duplicate")
	assert.Equal(t, transaction.StatusSuccess, all[0].Status)
	assert.Equal(t, int64(250), all[0].Amount)
	assert.Equal(t, "SAF12345", all[0].Receipt)
	assert.Equal(t, transaction.TypeC2B, all[0].Type)
}

func TestSTKStatusToleratesMissingLocalRecord(t *testing.T) {
	coord, _, _ := newFixture(acceptedAck(nil))

	snap, err := coord.STKStatus(context.Background(), m, "ws_CO_absent")
	require.NoError(t, err)
	assert.Nil(t, snap.Local)
	require.NotNil(t, snap.Ack)
}

func TestRegisterURLsUsesMerchantShortcodeByDefault(t *testing.T) {
	coord, _, gw := newFixture(acceptedAck(nil))

	ack := coord.RegisterURLs(context.Background(), m, "")
	assert.True(t, ack.OK())
	assert.Equal(t, "174379", gw.lastShortcode)

	coord.RegisterURLs(context.Background(), m, "600999")
	assert.Equal(t, "600999", gw.lastShortcode)
}

func TestFindByCorrelationIgnoresEmptyID(t *testing.T) {
	st := memory.New()
	_, err := st.FindByCorrelationID(context.Background(), transaction.ByConversationID, "")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

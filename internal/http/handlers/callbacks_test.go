package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpesagw/internal/config"
	"mpesagw/internal/domain/transaction"
	"mpesagw/internal/lifecycle"
	"mpesagw/internal/store/memory"
)

// Callback reconciliation never talks to the upstream, so the coordinator is
// built with no gateway at all.
func newCallbacksFixture() (*Callbacks, *memory.Store) {
	st := memory.New()
	cfg := config.Cfg{App: config.AppCfg{CallbackBaseURL: "https://pay.example.com"}}
	coord := lifecycle.New(st, nil, cfg.Callbacks())
	return NewCallbacks(coord), st
}

func postCallback(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func assertAccepted(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, rec.Body.String())
}

func TestSTKCallbackRecordsResult(t *testing.T) {
	h, st := newCallbacksFixture()

	body := `{"Body":{"stkCallback":{"MerchantRequestID":"29115-1","CheckoutRequestID":"ws_CO_1",
		"ResultCode":0,"ResultDesc":"Processed successfully","CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":100.0},
			{"Name":"MpesaReceiptNumber","Value":"ABC123"},
			{"Name":"PhoneNumber","Value":254712345678}
		]}}}}`
	assertAccepted(t, postCallback(t, h.STKPush, body))

	stored, err := st.FindByCorrelationID(context.Background(), transaction.ByCheckoutID, "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, stored.Status)
	assert.Equal(t, "ABC123", stored.Receipt)
}

func TestSTKCallbackMalformedBodyStillAccepted(t *testing.T) {
	h, st := newCallbacksFixture()

	assertAccepted(t, postCallback(t, h.STKPush, `not json at all`))
	assertAccepted(t, postCallback(t, h.STKPush, `{"Body":{}}`))

	all, err := st.List(context.Background(), 0, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestC2BConfirmationRecordsCollection(t *testing.T) {
	h, st := newCallbacksFixture()

	body := `{"TransactionType":"Pay Bill","TransID":"SAF12345","TransAmount":"250.00",
		"BusinessShortCode":"174379","BillRefNumber":"INV-9","MSISDN":"254712345678"}`
	assertAccepted(t, postCallback(t, h.C2BConfirmation, body))

	stored, err := st.FindByCorrelationID(context.Background(), transaction.ByReceipt, "SAF12345")
	require.NoError(t, err)
	assert.Equal(t, int64(250), stored.Amount)
	assert.Equal(t, transaction.TypeC2B, stored.Type)
}

func TestC2BValidationAlwaysAccepts(t *testing.T) {
	h, _ := newCallbacksFixture()
	assertAccepted(t, postCallback(t, h.C2BValidation, `{"TransID":"X"}`))
	assertAccepted(t, postCallback(t, h.C2BValidation, `garbage`))
}

func TestB2CResultCreatesRecordWhenUnknown(t *testing.T) {
	h, st := newCallbacksFixture()

	body := `{"Result":{"ResultType":0,"ResultCode":0,"ResultDesc":"ok",
		"OriginatorConversationID":"10571-1","ConversationID":"AG_42","TransactionID":"SAF999",
		"ResultParameters":{"ResultParameter":[{"Key":"TransactionAmount","Value":500}]}}}`
	assertAccepted(t, postCallback(t, h.B2CResult, body))

	stored, err := st.FindByCorrelationID(context.Background(), transaction.ByConversationID, "AG_42")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, stored.Status)
	assert.Equal(t, transaction.TypeB2C, stored.Type)
}

func TestB2BTimeoutMarksTimeout(t *testing.T) {
	h, st := newCallbacksFixture()

	body := `{"Result":{"ResultType":1,"ResultCode":1,"ResultDesc":"The transaction timed out",
		"OriginatorConversationID":"10571-2","ConversationID":"AG_43"}}`
	assertAccepted(t, postCallback(t, h.B2BTimeout, body))

	stored, err := st.FindByCorrelationID(context.Background(), transaction.ByConversationID, "AG_43")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusTimeout, stored.Status)
	assert.Equal(t, transaction.TypeB2B, stored.Type)
}

func TestAuditAcceptsAnything(t *testing.T) {
	h, st := newCallbacksFixture()
	assertAccepted(t, postCallback(t, h.Audit("balance_result"), `{"Result":{"ResultCode":0}}`))
	assertAccepted(t, postCallback(t, h.Audit("balance_result"), `not json`))

	all, err := st.List(context.Background(), 0, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, all, "audit callbacks record no transactions")
}

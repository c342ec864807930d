package daraja

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points a client at the given handler with the token already
// cached, so only the payment call itself hits the handler.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := NewMemoryTokenStore()
	require.NoError(t, store.Put(context.Background(), cacheKey(testCred), "cached-token", TokenTTL))

	return &Client{
		http:    srv.Client(),
		baseURL: srv.URL,
		tokens: &TokenSource{
			store:   store,
			http:    srv.Client(),
			baseURL: srv.URL,
			ttl:     TokenTTL,
			locks:   make(map[string]*sync.Mutex),
		},
		now: func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, eat) },
	}
}

func TestSTKPushAccepted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mpesa/stkpush/v1/processrequest", r.URL.Path)
		assert.Equal(t, "Bearer cached-token", r.Header.Get("Authorization"))

		var req STKPushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "254712345678", req.PhoneNumber)
		assert.Equal(t, int64(10), req.Amount)

		w.Write([]byte(`{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_1",` +
			`"ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing",` +
			`"CustomerMessage":"Success. Request accepted for processing"}`))
	})

	ack := c.STKPush(context.Background(), testCred, STKPushParams{Phone: "254712345678", Amount: 10})
	require.True(t, ack.OK())
	assert.Equal(t, "ws_CO_1", ack.CheckoutRequestID)
	assert.Equal(t, "29115-34620561-1", ack.MerchantRequestID)
	assert.NotEmpty(t, ack.Raw)
}

func TestRejectionIsAckNotError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"requestId":"1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid Amount"}`))
	})

	ack := c.B2C(context.Background(), testCred, B2CParams{Phone: "254700000001", Amount: 5})
	require.NotNil(t, ack)
	assert.False(t, ack.OK())
	assert.Empty(t, ack.Err, "a parsed rejection is not a transport failure")
	assert.Equal(t, "Bad Request - Invalid Amount", ack.Failure())
}

func TestUnreachableUpstreamIsSyntheticAck(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {})
	// Point at a port nothing listens on.
	c.baseURL = "http://127.0.0.1:1"
	c.http = &http.Client{Timeout: time.Second}

	ack := c.B2B(context.Background(), testCred, B2BParams{ReceiverShortcode: "600000", Amount: 10})
	require.NotNil(t, ack)
	assert.False(t, ack.OK())
	assert.NotEmpty(t, ack.Err)

	var synthetic struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(ack.Raw, &synthetic))
	assert.Equal(t, ack.Err, synthetic.Error)
}

func TestNonJSONBodyIsSyntheticAck(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>Bad Gateway</html>"))
	})

	ack := c.AccountBalance(context.Background(), testCred, "", "https://x/result", "https://x/timeout")
	assert.False(t, ack.OK())
	assert.Contains(t, ack.Err, "non-JSON response")
	assert.Contains(t, ack.Err, "Bad Gateway")
}

func TestRegisterURLsRefusesMpesaPathLocally(t *testing.T) {
	var called bool
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) { called = true })

	ack := c.RegisterURLs(context.Background(), testCred, "174379",
		"https://pay.example.com/mpesa/confirm", "https://pay.example.com/validate")
	assert.False(t, ack.OK())
	assert.False(t, called, "request must not reach the upstream")
}

func TestTokenFailurePropagatesAsAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errorMessage":"Invalid Authentication"}`))
	}))
	t.Cleanup(srv.Close)

	c := &Client{
		http:    srv.Client(),
		baseURL: srv.URL,
		tokens: &TokenSource{
			store:   NewMemoryTokenStore(),
			http:    srv.Client(),
			baseURL: srv.URL,
			ttl:     TokenTTL,
			locks:   make(map[string]*sync.Mutex),
		},
		now: time.Now,
	}

	ack := c.STKQuery(context.Background(), testCred, "ws_CO_1")
	assert.False(t, ack.OK())
	assert.Contains(t, ack.Err, "token exchange failed")
}

// Package httpx wires the HTTP surface: the API-key-gated merchant API and
// the public callback endpoints the provider posts to.
package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mpesagw/internal/http/handlers"
	middlewarex "mpesagw/internal/http/middleware"
	"mpesagw/internal/store"
)

// RouterDependencies carries everything the router mounts.
type RouterDependencies struct {
	Payments  *handlers.Payments
	Callbacks *handlers.Callbacks
	APIKeys   store.APIClientStore
}

// NewRouter builds the service router. Callback paths must stay aligned with
// config.Callbacks(): the provider posts to the URLs registered there.
func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Merchant-facing API.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarex.APIKeyAuth(deps.APIKeys))
		r.Post("/stk-push", deps.Payments.STKPush)
		r.Post("/stk-query", deps.Payments.STKQuery)
		r.Post("/b2c", deps.Payments.B2C)
		r.Post("/b2b", deps.Payments.B2B)
		r.Post("/register-c2b", deps.Payments.RegisterC2B)
		r.Post("/transaction-status", deps.Payments.TransactionStatus)
		r.Post("/balance", deps.Payments.Balance)
		r.Post("/reversal", deps.Payments.Reversal)
		r.Get("/transactions", deps.Payments.ListTransactions)
	})

	// Provider callbacks. Unauthenticated: Daraja signs nothing, the URLs
	// are the secret.
	r.Post("/mpesa/stk/callback", deps.Callbacks.STKPush)
	r.Post("/callback/c2b/validation", deps.Callbacks.C2BValidation)
	r.Post("/callback/c2b/confirmation", deps.Callbacks.C2BConfirmation)
	r.Post("/b2c/result", deps.Callbacks.B2CResult)
	r.Post("/b2c/timeout", deps.Callbacks.B2CTimeout)
	r.Post("/b2b/result", deps.Callbacks.B2BResult)
	r.Post("/b2b/timeout", deps.Callbacks.B2BTimeout)
	r.Post("/transaction-status/result", deps.Callbacks.Audit("transaction_status_result"))
	r.Post("/transaction-status/timeout", deps.Callbacks.Audit("transaction_status_timeout"))
	r.Post("/balance/result", deps.Callbacks.Audit("balance_result"))
	r.Post("/balance/timeout", deps.Callbacks.Audit("balance_timeout"))
	r.Post("/reversal/result", deps.Callbacks.Audit("reversal_result"))
	r.Post("/reversal/timeout", deps.Callbacks.Audit("reversal_timeout"))

	return r
}

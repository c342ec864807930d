package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"mpesagw/internal/daraja"
	"mpesagw/internal/domain/transaction"
	"mpesagw/internal/lifecycle"
)

// Callbacks receives the provider's asynchronous notifications. Every
// endpoint acknowledges with the fixed success shape regardless of what
// processing did: a non-zero ack only makes the provider redeliver a payload
// we already could not handle. Failures are logged, never surfaced.
type Callbacks struct {
	coord *lifecycle.Coordinator
}

func NewCallbacks(coord *lifecycle.Coordinator) *Callbacks {
	return &Callbacks{coord: coord}
}

var callbackAck = map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"}

func acceptCallback(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, callbackAck)
}

func readBody(r *http.Request) []byte {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil
	}
	return body
}

// STKPush handles the push-payment result callback.
func (h *Callbacks) STKPush(w http.ResponseWriter, r *http.Request) {
	raw := readBody(r)
	cb, err := daraja.ParseSTKCallback(raw)
	if err != nil {
		log.Warn().Err(err).Str("body", string(raw)).Msg("malformed stk callback")
		acceptCallback(w)
		return
	}
	if err := h.coord.ReconcileSTKCallback(r.Context(), cb, raw); err != nil {
		log.Error().Err(err).Str("checkout_request_id", cb.CheckoutRequestID).
			Msg("stk callback reconciliation failed")
	}
	acceptCallback(w)
}

// C2BValidation pre-screens an incoming collection. We accept everything;
// the payload is logged for audit.
func (h *Callbacks) C2BValidation(w http.ResponseWriter, r *http.Request) {
	raw := readBody(r)
	log.Info().RawJSON("payload", jsonOrNull(raw)).Msg("c2b validation received")
	acceptCallback(w)
}

// C2BConfirmation records a completed direct collection.
func (h *Callbacks) C2BConfirmation(w http.ResponseWriter, r *http.Request) {
	raw := readBody(r)
	cb, err := daraja.ParseC2BConfirmation(raw)
	if err != nil {
		log.Warn().Err(err).Str("body", string(raw)).Msg("malformed c2b confirmation")
		acceptCallback(w)
		return
	}
	if err := h.coord.RecordC2BConfirmation(r.Context(), cb, raw); err != nil {
		log.Error().Err(err).Str("receipt", cb.TransID).Msg("c2b confirmation failed")
	}
	acceptCallback(w)
}

// B2CResult handles the disbursement-to-person result callback.
func (h *Callbacks) B2CResult(w http.ResponseWriter, r *http.Request) {
	h.result(w, r, transaction.TypeB2C, false)
}

// B2CTimeout handles the provider-side queue timeout for a B2C request.
func (h *Callbacks) B2CTimeout(w http.ResponseWriter, r *http.Request) {
	h.result(w, r, transaction.TypeB2C, true)
}

// B2BResult handles the disbursement-to-business result callback.
func (h *Callbacks) B2BResult(w http.ResponseWriter, r *http.Request) {
	h.result(w, r, transaction.TypeB2B, false)
}

// B2BTimeout handles the provider-side queue timeout for a B2B request.
func (h *Callbacks) B2BTimeout(w http.ResponseWriter, r *http.Request) {
	h.result(w, r, transaction.TypeB2B, true)
}

func (h *Callbacks) result(w http.ResponseWriter, r *http.Request, typ transaction.Type, timeout bool) {
	raw := readBody(r)
	res, err := daraja.ParseResult(raw)
	if err != nil {
		log.Warn().Err(err).Str("type", string(typ)).Str("body", string(raw)).
			Msg("malformed result callback")
		acceptCallback(w)
		return
	}
	if timeout {
		err = h.coord.ReconcileTimeout(r.Context(), typ, res, raw)
	} else {
		err = h.coord.ReconcileResult(r.Context(), typ, res, raw)
	}
	if err != nil {
		log.Error().Err(err).Str("type", string(typ)).
			Str("conversation_id", res.ConversationID).
			Msg("result reconciliation failed")
	}
	acceptCallback(w)
}

// Audit accepts and logs a callback that carries no transaction state we
// track locally (status, balance and reversal results and their timeouts).
func (h *Callbacks) Audit(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := readBody(r)
		log.Info().Str("callback", name).RawJSON("payload", jsonOrNull(raw)).
			Msg("callback received")
		acceptCallback(w)
	}
}

func jsonOrNull(raw []byte) []byte {
	if json.Valid(raw) {
		return raw
	}
	return []byte("null")
}

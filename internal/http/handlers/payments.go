package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"mpesagw/internal/daraja"
	"mpesagw/internal/dispatch"
	"mpesagw/internal/lifecycle"
	"mpesagw/internal/store"
)

// Payments exposes the merchant-facing API: payment initiations, queries and
// the transaction listing. Everything here sits behind the API-key gate.
type Payments struct {
	coord      *lifecycle.Coordinator
	dispatcher *dispatch.Dispatcher
	merchants  store.MerchantStore
	txns       store.TransactionStore
}

func NewPayments(coord *lifecycle.Coordinator, d *dispatch.Dispatcher, merchants store.MerchantStore, txns store.TransactionStore) *Payments {
	return &Payments{coord: coord, dispatcher: d, merchants: merchants, txns: txns}
}

type stkPushRequest struct {
	MerchantID  int64   `json:"merchant_id"`
	Phone       string  `json:"phone" validate:"required,min=9"`
	Amount      float64 `json:"amount" validate:"required,min=1"`
	AccountRef  string  `json:"account_reference"`
	Description string  `json:"description"`
}

// STKPush prompts the payer's handset for a customer-initiated payment.
func (h *Payments) STKPush(w http.ResponseWriter, r *http.Request) {
	var req stkPushRequest
	if err := decode(r, &req); err != nil {
		validationFailed(w, err)
		return
	}
	amount, ok := wholeAmount(req.Amount)
	if !ok {
		badRequest(w, "Amount must be a whole number of at least 1")
		return
	}
	m, err := resolveMerchant(r.Context(), h.merchants, req.MerchantID)
	if err != nil {
		badRequest(w, "Unknown merchant")
		return
	}

	raw, _ := json.Marshal(req)
	res, err := h.coord.InitiateSTKPush(r.Context(), m, lifecycle.STKPushInput{
		Phone:          normalizePhone(req.Phone),
		Amount:         amount,
		AccountRef:     req.AccountRef,
		Description:    req.Description,
		RequestPayload: raw,
	})
	if err != nil {
		initiationFailed(w, err)
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "STK push initiated",
		Data: map[string]any{
			"transaction_id":      res.Transaction.ID,
			"checkout_request_id": res.Transaction.CheckoutRequestID,
			"merchant_request_id": res.Transaction.MerchantRequestID,
			"customer_message":    res.Ack.CustomerMessage,
		},
	})
}

type stkQueryRequest struct {
	MerchantID        int64  `json:"merchant_id"`
	CheckoutRequestID string `json:"checkout_request_id" validate:"required"`
}

// STKQuery asks the upstream for the state of a push and returns the local
// record alongside, when one exists.
func (h *Payments) STKQuery(w http.ResponseWriter, r *http.Request) {
	var req stkQueryRequest
	if err := decode(r, &req); err != nil {
		validationFailed(w, err)
		return
	}
	m, err := resolveMerchant(r.Context(), h.merchants, req.MerchantID)
	if err != nil {
		badRequest(w, "Unknown merchant")
		return
	}

	snap, err := h.coord.STKStatus(r.Context(), m, req.CheckoutRequestID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "Status lookup failed"})
		return
	}
	data := map[string]any{"upstream": json.RawMessage(snap.Ack.Raw)}
	if snap.Local != nil {
		data["transaction"] = snap.Local
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: data})
}

type b2cRequest struct {
	MerchantID int64   `json:"merchant_id"`
	Phone      string  `json:"phone" validate:"required,min=9"`
	Amount     float64 `json:"amount" validate:"required,min=1"`
	CommandID  string  `json:"command_id" validate:"omitempty,oneof=BusinessPayment SalaryPayment PromotionPayment"`
	Remarks    string  `json:"remarks"`
	Queue      bool    `json:"queue"`
}

// B2C disburses to a person. With "queue": true the call returns immediately
// and the dispatcher retries transient failures in the background.
func (h *Payments) B2C(w http.ResponseWriter, r *http.Request) {
	var req b2cRequest
	if err := decode(r, &req); err != nil {
		validationFailed(w, err)
		return
	}
	amount, ok := wholeAmount(req.Amount)
	if !ok {
		badRequest(w, "Amount must be a whole number of at least 1")
		return
	}
	m, err := resolveMerchant(r.Context(), h.merchants, req.MerchantID)
	if err != nil {
		badRequest(w, "Unknown merchant")
		return
	}

	raw, _ := json.Marshal(req)
	in := lifecycle.B2CInput{
		Phone:          normalizePhone(req.Phone),
		Amount:         amount,
		CommandID:      req.CommandID,
		Remarks:        req.Remarks,
		RequestPayload: raw,
	}

	if req.Queue {
		jobID, err := h.dispatcher.EnqueueB2C(*m, in)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, apiResponse{Success: false, Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, apiResponse{
			Success: true,
			Message: "B2C payment queued",
			Data:    map[string]any{"job_id": jobID},
		})
		return
	}

	res, err := h.coord.InitiateB2C(r.Context(), m, in)
	if err != nil {
		initiationFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "B2C payment initiated",
		Data:    disbursementData(res),
	})
}

type b2bRequest struct {
	MerchantID        int64   `json:"merchant_id"`
	ReceiverShortcode string  `json:"receiver_shortcode" validate:"required"`
	Amount            float64 `json:"amount" validate:"required,min=1"`
	CommandID         string  `json:"command_id" validate:"omitempty,oneof=BusinessPayBill BusinessBuyGoods"`
	Remarks           string  `json:"remarks"`
	Queue             bool    `json:"queue"`
}

// B2B disburses to another business shortcode.
func (h *Payments) B2B(w http.ResponseWriter, r *http.Request) {
	var req b2bRequest
	if err := decode(r, &req); err != nil {
		validationFailed(w, err)
		return
	}
	amount, ok := wholeAmount(req.Amount)
	if !ok {
		badRequest(w, "Amount must be a whole number of at least 1")
		return
	}
	m, err := resolveMerchant(r.Context(), h.merchants, req.MerchantID)
	if err != nil {
		badRequest(w, "Unknown merchant")
		return
	}

	raw, _ := json.Marshal(req)
	in := lifecycle.B2BInput{
		ReceiverShortcode: req.ReceiverShortcode,
		Amount:            amount,
		CommandID:         req.CommandID,
		Remarks:           req.Remarks,
		RequestPayload:    raw,
	}

	if req.Queue {
		jobID, err := h.dispatcher.EnqueueB2B(*m, in)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, apiResponse{Success: false, Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, apiResponse{
			Success: true,
			Message: "B2B payment queued",
			Data:    map[string]any{"job_id": jobID},
		})
		return
	}

	res, err := h.coord.InitiateB2B(r.Context(), m, in)
	if err != nil {
		initiationFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "B2B payment initiated",
		Data:    disbursementData(res),
	})
}

type registerC2BRequest struct {
	MerchantID int64  `json:"merchant_id"`
	Shortcode  string `json:"shortcode"`
}

// RegisterC2B registers the validation/confirmation URLs for a shortcode.
func (h *Payments) RegisterC2B(w http.ResponseWriter, r *http.Request) {
	var req registerC2BRequest
	if err := decode(r, &req); err != nil {
		validationFailed(w, err)
		return
	}
	m, err := resolveMerchant(r.Context(), h.merchants, req.MerchantID)
	if err != nil {
		badRequest(w, "Unknown merchant")
		return
	}
	ack := h.coord.RegisterURLs(r.Context(), m, req.Shortcode)
	ackResponse(w, ack, "URLs registered")
}

type statusRequest struct {
	MerchantID    int64  `json:"merchant_id"`
	TransactionID string `json:"transaction_id" validate:"required"`
	Remarks       string `json:"remarks"`
}

// TransactionStatus issues an upstream status query for a provider receipt;
// the answer arrives asynchronously on the status result callback.
func (h *Payments) TransactionStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		validationFailed(w, err)
		return
	}
	m, err := resolveMerchant(r.Context(), h.merchants, req.MerchantID)
	if err != nil {
		badRequest(w, "Unknown merchant")
		return
	}
	ack := h.coord.TransactionStatus(r.Context(), m, req.TransactionID, req.Remarks)
	ackResponse(w, ack, "Status query accepted")
}

type balanceRequest struct {
	MerchantID int64  `json:"merchant_id"`
	Remarks    string `json:"remarks"`
}

// Balance issues an upstream account-balance query.
func (h *Payments) Balance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := decode(r, &req); err != nil {
		validationFailed(w, err)
		return
	}
	m, err := resolveMerchant(r.Context(), h.merchants, req.MerchantID)
	if err != nil {
		badRequest(w, "Unknown merchant")
		return
	}
	ack := h.coord.AccountBalance(r.Context(), m, req.Remarks)
	ackResponse(w, ack, "Balance query accepted")
}

type reversalRequest struct {
	MerchantID    int64   `json:"merchant_id"`
	TransactionID string  `json:"transaction_id" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,min=1"`
	Remarks       string  `json:"remarks"`
}

// Reversal asks the upstream to reverse a settled transaction.
func (h *Payments) Reversal(w http.ResponseWriter, r *http.Request) {
	var req reversalRequest
	if err := decode(r, &req); err != nil {
		validationFailed(w, err)
		return
	}
	amount, ok := wholeAmount(req.Amount)
	if !ok {
		badRequest(w, "Amount must be a whole number of at least 1")
		return
	}
	m, err := resolveMerchant(r.Context(), h.merchants, req.MerchantID)
	if err != nil {
		badRequest(w, "Unknown merchant")
		return
	}
	ack := h.coord.Reverse(r.Context(), m, lifecycle.ReversalInput{
		TransactionID: req.TransactionID,
		Amount:        amount,
		Remarks:       req.Remarks,
	})
	ackResponse(w, ack, "Reversal accepted")
}

// ListTransactions pages through recorded transactions, newest first.
// ?merchant_id filters to one merchant; ?limit and ?offset page.
func (h *Payments) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	merchantID, _ := strconv.ParseInt(q.Get("merchant_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	txns, err := h.txns.List(r.Context(), merchantID, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("list transactions")
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "Listing failed"})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: txns})
}

// initiationFailed maps a failed initiation to a response: 502 when the
// upstream was unreachable, 400 when it explicitly rejected the request.
func initiationFailed(w http.ResponseWriter, err error) {
	var ie *lifecycle.InitiationError
	if errors.As(err, &ie) {
		code := http.StatusBadRequest
		if ie.Unreachable {
			code = http.StatusBadGateway
		}
		writeJSON(w, code, apiResponse{
			Success: false,
			Message: ie.Message,
			Data:    map[string]any{"transaction_id": ie.TransactionID},
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "Payment initiation failed"})
}

func ackResponse(w http.ResponseWriter, ack *daraja.Ack, okMsg string) {
	if !ack.OK() {
		writeJSON(w, http.StatusBadGateway, apiResponse{Success: false, Message: ack.Failure()})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: okMsg, Data: ack})
}

func disbursementData(res *lifecycle.InitiationResult) map[string]any {
	return map[string]any{
		"transaction_id":  res.Transaction.ID,
		"conversation_id": res.Transaction.ConversationID,
		"response_desc":   res.Ack.ResponseDescription,
	}
}

package daraja

import (
	"encoding/json"
	"fmt"
)

// Asynchronous callback shapes pushed by Daraja. These mirror the wire
// payloads exactly; field extraction from the name/value lists happens in the
// lifecycle layer.

// Item is one entry of an STK callback's metadata list.
type Item struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

// ResultParameter is one entry of a B2C/B2B result's parameter list.
type ResultParameter struct {
	Key   string `json:"Key"`
	Value any    `json:"Value"`
}

// STKCallback is the inner body of a push-payment result.
type STKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []Item `json:"Item"`
	} `json:"CallbackMetadata"`
}

type stkEnvelope struct {
	Body struct {
		StkCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// ParseSTKCallback decodes a push-payment callback envelope.
func ParseSTKCallback(body []byte) (STKCallback, error) {
	var env stkEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return STKCallback{}, fmt.Errorf("decode stk callback: %w", err)
	}
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return STKCallback{}, fmt.Errorf("not an stk callback: missing CheckoutRequestID")
	}
	return cb, nil
}

// C2BConfirmation is the flat confirmation body for a direct collection.
// TransAmount arrives as a string in production and a number in some
// sandboxes, hence the untyped field.
type C2BConfirmation struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"`
	TransAmount       any    `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	MSISDN            string `json:"MSISDN"`
	FirstName         string `json:"FirstName"`
}

// ParseC2BConfirmation decodes a C2B confirmation body.
func ParseC2BConfirmation(body []byte) (C2BConfirmation, error) {
	var cb C2BConfirmation
	if err := json.Unmarshal(body, &cb); err != nil {
		return C2BConfirmation{}, fmt.Errorf("decode c2b confirmation: %w", err)
	}
	if cb.TransID == "" {
		return C2BConfirmation{}, fmt.Errorf("not a c2b confirmation: missing TransID")
	}
	return cb, nil
}

// Result is the nested body shared by B2C/B2B result and timeout callbacks
// (and by transaction-status/balance/reversal results, which reuse the shape).
type Result struct {
	ResultType               int    `json:"ResultType"`
	ResultCode               int    `json:"ResultCode"`
	ResultDesc               string `json:"ResultDesc"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ConversationID           string `json:"ConversationID"`
	TransactionID            string `json:"TransactionID"`
	ResultParameters         struct {
		ResultParameter []ResultParameter `json:"ResultParameter"`
	} `json:"ResultParameters"`
}

type resultEnvelope struct {
	Result *Result `json:"Result"`
}

// ParseResult decodes a {"Result": {...}} envelope.
func ParseResult(body []byte) (Result, error) {
	var env resultEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Result{}, fmt.Errorf("decode result callback: %w", err)
	}
	if env.Result == nil {
		return Result{}, fmt.Errorf("not a result callback: missing Result")
	}
	return *env.Result, nil
}

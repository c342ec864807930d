package daraja

import "encoding/json"

const (
	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"
)

// BaseURLFor maps an environment name to the Daraja base URL. Anything other
// than "production" goes to the sandbox.
func BaseURLFor(env string) string {
	if env == "production" {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// Credentials is the per-merchant credential set every operation needs.
type Credentials struct {
	Shortcode          string
	ConsumerKey        string
	ConsumerSecret     string
	Passkey            string
	InitiatorName      string
	SecurityCredential string
}

// Ack is the normalized synchronous acknowledgment for every client
// operation. The client never returns a Go error: transport failures and
// non-JSON bodies are folded into Err so callers branch on data. The sole
// success signal is ResponseCode == "0" with no transport error.
type Ack struct {
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
	CustomerMessage          string `json:"CustomerMessage"`
	MerchantRequestID        string `json:"MerchantRequestID"`
	CheckoutRequestID        string `json:"CheckoutRequestID"`
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`

	// Set on STK push status queries.
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`

	// Set when the upstream rejects the request outright (4xx/5xx).
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`

	// Err is the transport-level failure (timeout, connection error,
	// unparseable body). Empty whenever a JSON acknowledgment was obtained.
	Err string `json:"-"`

	// Raw is the acknowledgment exactly as received, or a synthetic
	// {"error": ...} shape when no usable body exists. Stored for audit.
	Raw json.RawMessage `json:"-"`
}

// OK reports whether the upstream accepted the request synchronously.
func (a *Ack) OK() bool {
	return a.Err == "" && a.ResponseCode == "0"
}

// Failure returns the most specific failure message available.
func (a *Ack) Failure() string {
	switch {
	case a.ErrorMessage != "":
		return a.ErrorMessage
	case a.Err != "":
		return a.Err
	case a.ResponseDescription != "":
		return a.ResponseDescription
	}
	return "no acknowledgment from upstream"
}

// errAck builds the synthetic error-shaped acknowledgment used when the call
// never produced a parseable upstream response.
func errAck(msg string) *Ack {
	raw, _ := json.Marshal(map[string]string{"error": msg})
	return &Ack{Err: msg, Raw: raw}
}

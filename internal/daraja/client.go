package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Client performs the outbound authenticated Daraja calls, one method per
// upstream capability. Every method returns a non-nil *Ack and never an
// error: "upstream said no" and "upstream was unreachable" both surface as an
// acknowledgment that fails Ack.OK, so the lifecycle layer treats them
// uniformly as "no success acknowledgment".
type Client struct {
	http    *http.Client
	baseURL string
	tokens  *TokenSource
	now     func() time.Time
}

func NewClient(env string, tokens *TokenSource) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: BaseURLFor(env),
		tokens:  tokens,
		now:     time.Now,
	}
}

func (c *Client) STKPush(ctx context.Context, cred Credentials, p STKPushParams) *Ack {
	return c.post(ctx, cred, "/mpesa/stkpush/v1/processrequest", BuildSTKPush(cred, p, c.now()))
}

func (c *Client) STKQuery(ctx context.Context, cred Credentials, checkoutRequestID string) *Ack {
	return c.post(ctx, cred, "/mpesa/stkpushquery/v1/query", BuildSTKQuery(cred, checkoutRequestID, c.now()))
}

func (c *Client) B2C(ctx context.Context, cred Credentials, p B2CParams) *Ack {
	return c.post(ctx, cred, "/mpesa/b2c/v1/paymentrequest", BuildB2C(cred, p))
}

func (c *Client) B2B(ctx context.Context, cred Credentials, p B2BParams) *Ack {
	return c.post(ctx, cred, "/mpesa/b2b/v1/paymentrequest", BuildB2B(cred, p))
}

func (c *Client) RegisterURLs(ctx context.Context, cred Credentials, shortcode, confirmationURL, validationURL string) *Ack {
	req, err := BuildRegisterURLs(shortcode, confirmationURL, validationURL)
	if err != nil {
		return errAck(err.Error())
	}
	return c.post(ctx, cred, "/mpesa/c2b/v1/registerurl", req)
}

func (c *Client) TransactionStatus(ctx context.Context, cred Credentials, p StatusParams) *Ack {
	return c.post(ctx, cred, "/mpesa/transactionstatus/v1/query", BuildTransactionStatus(cred, p))
}

func (c *Client) AccountBalance(ctx context.Context, cred Credentials, remarks, resultURL, timeoutURL string) *Ack {
	return c.post(ctx, cred, "/mpesa/accountbalance/v1/query", BuildAccountBalance(cred, remarks, resultURL, timeoutURL))
}

func (c *Client) Reversal(ctx context.Context, cred Credentials, p ReversalParams) *Ack {
	return c.post(ctx, cred, "/mpesa/reversal/v1/request", BuildReversal(cred, p))
}

func (c *Client) post(ctx context.Context, cred Credentials, path string, payload any) *Ack {
	token, err := c.tokens.Token(ctx, cred)
	if err != nil {
		return errAck(err.Error())
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errAck("marshal request: " + err.Error())
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errAck("build request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.http.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("daraja request failed")
		return errAck(err.Error())
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return errAck("read response: " + err.Error())
	}

	var ack Ack
	if err := json.Unmarshal(raw, &ack); err != nil {
		// Rejections come back as JSON even on 4xx/5xx; a body that does
		// not parse means we never got a usable acknowledgment.
		return errAck(fmt.Sprintf("non-JSON response: status=%s body=%s", res.Status, string(raw)))
	}
	ack.Raw = raw

	log.Debug().
		Str("url", url).
		Int("status", res.StatusCode).
		Str("response_code", ack.ResponseCode).
		Str("error_code", ack.ErrorCode).
		Msg("daraja acknowledgment")
	return &ack
}

package daraja

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCred = Credentials{
	Shortcode:          "174379",
	ConsumerKey:        "key",
	ConsumerSecret:     "secret",
	Passkey:            "bfb279f9aa9bdbcf",
	InitiatorName:      "testapi",
	SecurityCredential: "encrypted",
}

func TestTimestampIsNairobiTime(t *testing.T) {
	// 21:04:05 UTC is 00:04:05 the next day in EAT.
	utc := time.Date(2026, 3, 10, 21, 4, 5, 0, time.UTC)
	assert.Equal(t, "20260311000405", Timestamp(utc))
}

func TestPasswordEncoding(t *testing.T) {
	got := Password("174379", "passkey", "20260101120000")
	decoded, err := base64.StdEncoding.DecodeString(got)
	require.NoError(t, err)
	assert.Equal(t, "174379passkey20260101120000", string(decoded))
}

func TestBuildSTKPush(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, eat)
	req := BuildSTKPush(testCred, STKPushParams{
		Phone:       "254712345678",
		Amount:      100,
		AccountRef:  "INV-1",
		Description: "Order",
		CallbackURL: "https://pay.example.com/cb",
	}, now)

	assert.Equal(t, "174379", req.BusinessShortCode)
	assert.Equal(t, "20260101120000", req.Timestamp)
	assert.Equal(t, Password("174379", testCred.Passkey, "20260101120000"), req.Password)
	assert.Equal(t, CommandCustomerPayBill, req.TransactionType)
	assert.Equal(t, "254712345678", req.PartyA)
	assert.Equal(t, "254712345678", req.PhoneNumber)
	assert.Equal(t, "174379", req.PartyB)
	assert.Equal(t, int64(100), req.Amount)
}

func TestBuildB2CDefaultsCommand(t *testing.T) {
	req := BuildB2C(testCred, B2CParams{Phone: "254700000001", Amount: 500})
	assert.Equal(t, CommandBusinessPayment, req.CommandID)
	assert.Equal(t, "174379", req.PartyA)
	assert.Equal(t, "254700000001", req.PartyB)
	assert.Equal(t, "testapi", req.InitiatorName)
	assert.Equal(t, "encrypted", req.SecurityCredential)

	req = BuildB2C(testCred, B2CParams{Phone: "254700000001", Amount: 500, CommandID: CommandSalaryPayment})
	assert.Equal(t, CommandSalaryPayment, req.CommandID)
}

func TestBuildB2BIdentifierTypes(t *testing.T) {
	req := BuildB2B(testCred, B2BParams{ReceiverShortcode: "600000", Amount: 1000})
	assert.Equal(t, CommandBusinessPayBill, req.CommandID)
	assert.Equal(t, IdentifierShortcode, req.SenderIdentifierType)
	assert.Equal(t, IdentifierShortcode, req.ReceiverIdentifierType)
	assert.Equal(t, "600000", req.PartyB)
	assert.Equal(t, "Ref", req.AccountReference)
}

func TestBuildRegisterURLsRejectsMpesaInURL(t *testing.T) {
	_, err := BuildRegisterURLs("174379", "https://pay.example.com/mpesa/confirm", "https://pay.example.com/validate")
	require.Error(t, err)

	req, err := BuildRegisterURLs("174379", "https://pay.example.com/callback/c2b/confirmation", "https://pay.example.com/callback/c2b/validation")
	require.NoError(t, err)
	assert.Equal(t, ResponseTypeCompleted, req.ResponseType)
	assert.Equal(t, "174379", req.ShortCode)
}

func TestBuildReversalTargetsOwnShortcode(t *testing.T) {
	req := BuildReversal(testCred, ReversalParams{TransactionID: "SAF123", Amount: 100})
	assert.Equal(t, CommandReversal, req.CommandID)
	assert.Equal(t, "174379", req.ReceiverParty)
	assert.Equal(t, IdentifierMSISDN, req.ReceiverIdentifierType)
	assert.Equal(t, "Reversal", req.Remarks)
}

func TestBuildTransactionStatusDefaults(t *testing.T) {
	req := BuildTransactionStatus(testCred, StatusParams{TransactionID: "SAF123"})
	assert.Equal(t, CommandTransactionStatus, req.CommandID)
	assert.Equal(t, IdentifierShortcode, req.IdentifierType)
	assert.Equal(t, "Status Query", req.Remarks)
}

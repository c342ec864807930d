package daraja

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Command and identifier codes understood by Daraja. The identifier types are
// wire constants: "4" means shortcode-based party identification, "11" a
// phone-based receiver (used in reversals).
const (
	CommandCustomerPayBill   = "CustomerPayBillOnline"
	CommandBusinessPayment   = "BusinessPayment"
	CommandSalaryPayment     = "SalaryPayment"
	CommandPromotionPayment  = "PromotionPayment"
	CommandBusinessPayBill   = "BusinessPayBill"
	CommandBusinessBuyGoods  = "BusinessBuyGoods"
	CommandTransactionStatus = "TransactionStatusQuery"
	CommandAccountBalance    = "AccountBalance"
	CommandReversal          = "TransactionReversal"

	IdentifierShortcode = "4"
	IdentifierMSISDN    = "11"

	ResponseTypeCompleted = "Completed"
)

// eat is the provider's clock zone; timestamps must be Nairobi time.
var eat = time.FixedZone("EAT", 3*3600)

// Timestamp renders t in the YYYYMMDDHHMMSS form Daraja expects.
func Timestamp(t time.Time) string {
	return t.In(eat).Format("20060102150405")
}

// Password is the STK push credential: base64(shortcode + passkey + timestamp).
// The concatenation order and encoding are a wire contract.
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKPushParams struct {
	Phone       string
	Amount      int64
	AccountRef  string
	Description string
	CallbackURL string
}

func BuildSTKPush(cred Credentials, p STKPushParams, now time.Time) STKPushRequest {
	ts := Timestamp(now)
	return STKPushRequest{
		BusinessShortCode: cred.Shortcode,
		Password:          Password(cred.Shortcode, cred.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   CommandCustomerPayBill,
		Amount:            p.Amount,
		PartyA:            p.Phone,
		PartyB:            cred.Shortcode,
		PhoneNumber:       p.Phone,
		CallBackURL:       p.CallbackURL,
		AccountReference:  p.AccountRef,
		TransactionDesc:   p.Description,
	}
}

type STKQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

func BuildSTKQuery(cred Credentials, checkoutRequestID string, now time.Time) STKQueryRequest {
	ts := Timestamp(now)
	return STKQueryRequest{
		BusinessShortCode: cred.Shortcode,
		Password:          Password(cred.Shortcode, cred.Passkey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}
}

type B2CRequest struct {
	InitiatorName      string `json:"InitiatorName"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	Amount             int64  `json:"Amount"`
	PartyA             string `json:"PartyA"`
	PartyB             string `json:"PartyB"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
	Occasion           string `json:"Occasion"`
}

type B2CParams struct {
	Phone      string
	Amount     int64
	CommandID  string
	Remarks    string
	Occasion   string
	ResultURL  string
	TimeoutURL string
}

func BuildB2C(cred Credentials, p B2CParams) B2CRequest {
	cmd := p.CommandID
	if cmd == "" {
		cmd = CommandBusinessPayment
	}
	return B2CRequest{
		InitiatorName:      cred.InitiatorName,
		SecurityCredential: cred.SecurityCredential,
		CommandID:          cmd,
		Amount:             p.Amount,
		PartyA:             cred.Shortcode,
		PartyB:             p.Phone,
		Remarks:            p.Remarks,
		QueueTimeOutURL:    p.TimeoutURL,
		ResultURL:          p.ResultURL,
		Occasion:           p.Occasion,
	}
}

type B2BRequest struct {
	Initiator              string `json:"Initiator"`
	SecurityCredential     string `json:"SecurityCredential"`
	CommandID              string `json:"CommandID"`
	SenderIdentifierType   string `json:"SenderIdentifierType"`
	ReceiverIdentifierType string `json:"ReceiverIdentifierType"`
	Amount                 int64  `json:"Amount"`
	PartyA                 string `json:"PartyA"`
	PartyB                 string `json:"PartyB"`
	AccountReference       string `json:"AccountReference"`
	Remarks                string `json:"Remarks"`
	QueueTimeOutURL        string `json:"QueueTimeOutURL"`
	ResultURL              string `json:"ResultURL"`
}

type B2BParams struct {
	ReceiverShortcode string
	Amount            int64
	CommandID         string
	AccountRef        string
	Remarks           string
	ResultURL         string
	TimeoutURL        string
}

func BuildB2B(cred Credentials, p B2BParams) B2BRequest {
	cmd := p.CommandID
	if cmd == "" {
		cmd = CommandBusinessPayBill
	}
	ref := p.AccountRef
	if ref == "" {
		ref = "Ref"
	}
	return B2BRequest{
		Initiator:              cred.InitiatorName,
		SecurityCredential:     cred.SecurityCredential,
		CommandID:              cmd,
		SenderIdentifierType:   IdentifierShortcode,
		ReceiverIdentifierType: IdentifierShortcode,
		Amount:                 p.Amount,
		PartyA:                 cred.Shortcode,
		PartyB:                 p.ReceiverShortcode,
		AccountReference:       ref,
		Remarks:                p.Remarks,
		QueueTimeOutURL:        p.TimeoutURL,
		ResultURL:              p.ResultURL,
	}
}

type RegisterURLsRequest struct {
	ShortCode       string `json:"ShortCode"`
	ResponseType    string `json:"ResponseType"`
	ConfirmationURL string `json:"ConfirmationURL"`
	ValidationURL   string `json:"ValidationURL"`
}

// BuildRegisterURLs prepares a C2B register-url request. Daraja's URL filter
// rejects callback URLs containing the word "mpesa", so that is checked here
// before the request ever goes out.
func BuildRegisterURLs(shortcode, confirmationURL, validationURL string) (RegisterURLsRequest, error) {
	for _, u := range []string{confirmationURL, validationURL} {
		if strings.Contains(strings.ToLower(u), "mpesa") {
			return RegisterURLsRequest{}, fmt.Errorf("daraja rejects register urls containing %q: %s", "mpesa", u)
		}
	}
	return RegisterURLsRequest{
		ShortCode:       shortcode,
		ResponseType:    ResponseTypeCompleted,
		ConfirmationURL: confirmationURL,
		ValidationURL:   validationURL,
	}, nil
}

type TransactionStatusRequest struct {
	Initiator          string `json:"Initiator"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	TransactionID      string `json:"TransactionID"`
	PartyA             string `json:"PartyA"`
	IdentifierType     string `json:"IdentifierType"`
	ResultURL          string `json:"ResultURL"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	Remarks            string `json:"Remarks"`
	Occasion           string `json:"Occasion"`
}

type StatusParams struct {
	TransactionID string
	Remarks       string
	Occasion      string
	ResultURL     string
	TimeoutURL    string
}

func BuildTransactionStatus(cred Credentials, p StatusParams) TransactionStatusRequest {
	remarks := p.Remarks
	if remarks == "" {
		remarks = "Status Query"
	}
	return TransactionStatusRequest{
		Initiator:          cred.InitiatorName,
		SecurityCredential: cred.SecurityCredential,
		CommandID:          CommandTransactionStatus,
		TransactionID:      p.TransactionID,
		PartyA:             cred.Shortcode,
		IdentifierType:     IdentifierShortcode,
		ResultURL:          p.ResultURL,
		QueueTimeOutURL:    p.TimeoutURL,
		Remarks:            remarks,
		Occasion:           p.Occasion,
	}
}

type AccountBalanceRequest struct {
	Initiator          string `json:"Initiator"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	PartyA             string `json:"PartyA"`
	IdentifierType     string `json:"IdentifierType"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
}

func BuildAccountBalance(cred Credentials, remarks, resultURL, timeoutURL string) AccountBalanceRequest {
	if remarks == "" {
		remarks = "Balance Query"
	}
	return AccountBalanceRequest{
		Initiator:          cred.InitiatorName,
		SecurityCredential: cred.SecurityCredential,
		CommandID:          CommandAccountBalance,
		PartyA:             cred.Shortcode,
		IdentifierType:     IdentifierShortcode,
		Remarks:            remarks,
		QueueTimeOutURL:    timeoutURL,
		ResultURL:          resultURL,
	}
}

type ReversalRequest struct {
	Initiator              string `json:"Initiator"`
	SecurityCredential     string `json:"SecurityCredential"`
	CommandID              string `json:"CommandID"`
	TransactionID          string `json:"TransactionID"`
	Amount                 int64  `json:"Amount"`
	ReceiverParty          string `json:"ReceiverParty"`
	ReceiverIdentifierType string `json:"ReceiverIdentifierType"`
	ResultURL              string `json:"ResultURL"`
	QueueTimeOutURL        string `json:"QueueTimeOutURL"`
	Remarks                string `json:"Remarks"`
	Occasion               string `json:"Occasion"`
}

type ReversalParams struct {
	TransactionID string
	Amount        int64
	Remarks       string
	Occasion      string
	ResultURL     string
	TimeoutURL    string
}

func BuildReversal(cred Credentials, p ReversalParams) ReversalRequest {
	remarks := p.Remarks
	if remarks == "" {
		remarks = "Reversal"
	}
	return ReversalRequest{
		Initiator:              cred.InitiatorName,
		SecurityCredential:     cred.SecurityCredential,
		CommandID:              CommandReversal,
		TransactionID:          p.TransactionID,
		Amount:                 p.Amount,
		ReceiverParty:          cred.Shortcode,
		ReceiverIdentifierType: IdentifierMSISDN,
		ResultURL:              p.ResultURL,
		QueueTimeOutURL:        p.TimeoutURL,
		Remarks:                remarks,
		Occasion:               p.Occasion,
	}
}

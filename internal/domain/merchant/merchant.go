package merchant

// Merchant is one tenant's Daraja credential set. The core never reaches for
// a global default merchant: every operation receives one explicitly, and
// "which merchant if unspecified" is decided by the HTTP layer.
type Merchant struct {
	ID                 int64
	Name               string
	Shortcode          string
	ConsumerKey        string
	ConsumerSecret     string
	Passkey            string
	InitiatorName      string
	SecurityCredential string
}

// Active reports whether the merchant can authenticate against Daraja.
func (m Merchant) Active() bool {
	return m.ConsumerKey != "" && m.ConsumerSecret != ""
}

package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbacksDeriveFromBase(t *testing.T) {
	cfg := Cfg{App: AppCfg{CallbackBaseURL: "https://pay.example.com/"}}
	urls := cfg.Callbacks()

	assert.Equal(t, "https://pay.example.com/mpesa/stk/callback", urls.STKCallback)
	assert.Equal(t, "https://pay.example.com/b2c/result", urls.B2CResult)
	assert.Equal(t, "https://pay.example.com/b2b/timeout", urls.B2BTimeout)
}

func TestC2BURLsAvoidProviderName(t *testing.T) {
	cfg := Cfg{App: AppCfg{CallbackBaseURL: "https://pay.example.com"}}
	urls := cfg.Callbacks()

	// Daraja's register-url filter rejects URLs containing "mpesa".
	assert.False(t, strings.Contains(urls.C2BValidation, "mpesa"), urls.C2BValidation)
	assert.False(t, strings.Contains(urls.C2BConfirmation, "mpesa"), urls.C2BConfirmation)
}

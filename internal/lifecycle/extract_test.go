package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mpesagw/internal/daraja"
)

func TestExtractPicksWantedNames(t *testing.T) {
	pairs := itemPairs([]daraja.Item{
		{Name: "Amount", Value: 100.0},
		{Name: "MpesaReceiptNumber", Value: "ABC123"},
		{Name: "TransactionDate", Value: 20260828101530.0},
		{Name: "PhoneNumber", Value: 254712345678.0},
	})
	got := extract(pairs, "MpesaReceiptNumber", "Amount", "PhoneNumber")
	assert.Len(t, got, 3)
	assert.Equal(t, "ABC123", got["MpesaReceiptNumber"])
	_, hasDate := got["TransactionDate"]
	assert.False(t, hasDate)
}

func TestAsStringRendersNumericPhones(t *testing.T) {
	assert.Equal(t, "254712345678", asString(254712345678.0))
	assert.Equal(t, "ABC123", asString("ABC123"))
	assert.Equal(t, "", asString(nil))
}

func TestAsAmountCoercions(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{100.0, 100, true},
		{"250.00", 250, true},
		{250.75, 250, true}, // settled amounts are truncated, not rounded
		{int64(7), 7, true},
		{"not a number", 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		got, ok := asAmount(c.in)
		assert.Equal(t, c.ok, ok, "input %v", c.in)
		assert.Equal(t, c.want, got, "input %v", c.in)
	}
}

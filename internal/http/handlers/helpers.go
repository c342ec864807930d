package handlers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"mpesagw/internal/domain/merchant"
	"mpesagw/internal/store"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: msg})
}

func validationFailed(w http.ResponseWriter, err error) {
	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, apiResponse{
		Success: false,
		Message: "Validation failed",
		Errors:  fields,
	})
}

// decode parses the body and runs struct validation.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// wholeAmount rejects fractional amounts up front: Daraja is integer-only
// for these flows and silent truncation would change the charged amount.
func wholeAmount(a float64) (int64, bool) {
	if a < 1 || a != math.Trunc(a) {
		return 0, false
	}
	return int64(a), true
}

// normalizePhone coerces common msisdn spellings to 254XXXXXXXXX.
func normalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	p := digits.String()
	switch {
	case len(p) == 9:
		return "254" + p
	case strings.HasPrefix(p, "0"):
		return "254" + p[1:]
	}
	return p
}

// resolveMerchant applies the selection policy: an explicit merchant_id wins,
// otherwise the configured default merchant. The lifecycle core itself never
// picks a merchant.
func resolveMerchant(ctx context.Context, merchants store.MerchantStore, id int64) (*merchant.Merchant, error) {
	if id != 0 {
		return merchants.FindByID(ctx, id)
	}
	return merchants.Default(ctx)
}

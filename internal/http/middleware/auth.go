package middlewarex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"mpesagw/internal/store"
)

// APIKeyAuth gates the payment API on the X-API-KEY header. Keys are stored
// hashed; the gate is a pure allow/deny lookup.
func APIKeyAuth(clients store.APIClientStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-KEY")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key == "" {
				unauthorized(w, http.StatusUnauthorized, "API key required")
				return
			}

			h := sha256.Sum256([]byte(key))
			client, err := clients.FindByKeyHash(r.Context(), hex.EncodeToString(h[:]))
			if err != nil {
				unauthorized(w, http.StatusForbidden, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAPIClient(r.Context(), client)))
		})
	}
}

func unauthorized(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

package daraja

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TokenTTL is how long a fetched bearer token is reused. Daraja tokens are
// valid for ~60 minutes; the margin keeps a token from expiring mid-flight.
const TokenTTL = 55 * time.Minute

// AuthError is returned when the OAuth token exchange fails. Body carries the
// raw upstream response for diagnostics.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("daraja token exchange failed: status=%d body=%s", e.Status, e.Body)
}

// TokenStore caches bearer tokens keyed by credential-pair hash. The memory
// implementation is per-process; the redis one is shared across instances.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, token string, ttl time.Duration) error
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

type memoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryTokenStore returns a process-local token cache.
func NewMemoryTokenStore() TokenStore {
	return &memoryTokenStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *memoryTokenStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.token, true, nil
}

func (s *memoryTokenStore) Put(_ context.Context, key, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{token: token, expiresAt: s.now().Add(ttl)}
	return nil
}

// TokenSource obtains and caches bearer tokens per credential pair. Fetches
// for the same key are single-flighted; a redundant fetch would be harmless
// but the upstream rate-limits the OAuth endpoint.
type TokenSource struct {
	store   TokenStore
	http    *http.Client
	baseURL string
	ttl     time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTokenSource(env string, store TokenStore) *TokenSource {
	return &TokenSource{
		store:   store,
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: BaseURLFor(env),
		ttl:     TokenTTL,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *TokenSource) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// cacheKey is a stable hash of the credential pair.
func cacheKey(cred Credentials) string {
	h := sha256.Sum256([]byte(cred.ConsumerKey + ":" + cred.ConsumerSecret))
	return "daraja:token:" + hex.EncodeToString(h[:])
}

// Token returns a valid bearer token for the credential pair, fetching one
// only on cache miss or expiry.
func (s *TokenSource) Token(ctx context.Context, cred Credentials) (string, error) {
	key := cacheKey(cred)

	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if tok, ok, err := s.store.Get(ctx, key); err != nil {
		log.Warn().Err(err).Msg("token store read failed, fetching fresh token")
	} else if ok {
		return tok, nil
	}

	tok, err := s.fetch(ctx, cred)
	if err != nil {
		return "", err
	}
	if err := s.store.Put(ctx, key, tok, s.ttl); err != nil {
		log.Warn().Err(err).Msg("token store write failed")
	}
	return tok, nil
}

func (s *TokenSource) fetch(ctx context.Context, cred Credentials) (string, error) {
	url := s.baseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(cred.ConsumerKey, cred.ConsumerSecret)

	res, err := s.http.Do(req)
	if err != nil {
		return "", &AuthError{Body: err.Error()}
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		return "", &AuthError{Status: res.StatusCode, Body: string(body)}
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		return "", &AuthError{Status: res.StatusCode, Body: string(body)}
	}
	return out.AccessToken, nil
}

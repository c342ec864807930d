// Package memory holds map-backed store implementations used by unit tests
// and local development without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mpesagw/internal/domain/merchant"
	"mpesagw/internal/domain/transaction"
	"mpesagw/internal/store"
)

type Store struct {
	mu           sync.Mutex
	nextID       int64
	transactions map[int64]*transaction.Transaction
	merchants    map[int64]*merchant.Merchant
	apiClients   map[string]*store.APIClient // keyed by key hash
}

func New() *Store {
	return &Store{
		transactions: make(map[int64]*transaction.Transaction),
		merchants:    make(map[int64]*merchant.Merchant),
		apiClients:   make(map[string]*store.APIClient),
	}
}

func (s *Store) Create(_ context.Context, t *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	s.transactions[t.ID] = &cp
	return nil
}

func (s *Store) FindByID(_ context.Context, id int64) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) FindByCorrelationID(_ context.Context, kind transaction.CorrelationKind, id string) (*transaction.Transaction, error) {
	if id == "" {
		return nil, store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *transaction.Transaction
	for _, t := range s.transactions {
		if t.CorrelationValue(kind) == id && (found == nil || t.ID > found.ID) {
			found = t
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *Store) Update(_ context.Context, id int64, u transaction.Update) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Phone != nil {
		t.Phone = *u.Phone
	}
	if u.Amount != nil {
		t.Amount = *u.Amount
	}
	if u.CheckoutRequestID != nil {
		t.CheckoutRequestID = *u.CheckoutRequestID
	}
	if u.MerchantRequestID != nil {
		t.MerchantRequestID = *u.MerchantRequestID
	}
	if u.ConversationID != nil {
		t.ConversationID = *u.ConversationID
	}
	if u.Receipt != nil {
		t.Receipt = *u.Receipt
	}
	if u.ResultDesc != nil {
		t.ResultDesc = *u.ResultDesc
	}
	if u.ResponsePayload != nil {
		t.ResponsePayload = u.ResponsePayload
	}
	if u.CallbackPayload != nil {
		t.CallbackPayload = u.CallbackPayload
	}
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (s *Store) List(_ context.Context, merchantID int64, limit, offset int) ([]*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*transaction.Transaction
	for _, t := range s.transactions {
		if merchantID != 0 && t.MerchantID != merchantID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddMerchant seeds a merchant and returns it with an assigned ID.
func (s *Store) AddMerchant(m merchant.Merchant) merchant.Merchant {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.merchants[m.ID] = &m
	return m
}

func (s *Store) FindMerchant(_ context.Context, id int64) (*merchant.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.merchants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) Default(_ context.Context) (*merchant.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first *merchant.Merchant
	for _, m := range s.merchants {
		if first == nil || m.ID < first.ID {
			first = m
		}
	}
	if first == nil {
		return nil, store.ErrNotFound
	}
	cp := *first
	return &cp, nil
}

// FindByID satisfies store.MerchantStore.
type Merchants struct{ *Store }

func (m Merchants) FindByID(ctx context.Context, id int64) (*merchant.Merchant, error) {
	return m.FindMerchant(ctx, id)
}

// AddAPIClient seeds an API client keyed by its key hash.
func (s *Store) AddAPIClient(keyHash string, c store.APIClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiClients[keyHash] = &c
}

func (s *Store) FindByKeyHash(_ context.Context, keyHash string) (*store.APIClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.apiClients[keyHash]
	if !ok || !c.Active {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

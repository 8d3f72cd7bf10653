package repository

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/churnboard/churnboard/internal/domain/customer"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[int64]customer.Customer
	ids      []int64 // sorted ascending, for keyset pagination
	risk     riskIndex
	statuses map[int64][]customer.Status
	nextID   int64
	now      func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &MemoryStore{
		byID:     make(map[int64]customer.Customer),
		statuses: make(map[int64][]customer.Status),
		now:      o.now,
	}
}

var _ Store = (*MemoryStore)(nil)

// ListCustomers implements Store.
func (s *MemoryStore) ListCustomers(_ context.Context, afterID int64, limit int) ([]customer.Customer, error) {
	defer observe("list_customers", time.Now())
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] > afterID })
	end := min(start+limit, len(s.ids))
	out := make([]customer.Customer, 0, end-start)
	for _, id := range s.ids[start:end] {
		out = append(out, s.withCount(s.byID[id]))
	}
	return out, nil
}

// Customer implements Store.
func (s *MemoryStore) Customer(_ context.Context, id int64) (customer.Customer, error) {
	defer observe("customer", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return customer.Customer{}, ErrNotFound
	}
	return s.withCount(c), nil
}

// Summary implements Store.
func (s *MemoryStore) Summary(_ context.Context, threshold float64) (customer.Summary, error) {
	defer observe("summary", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := customer.Summary{
		TotalCount:         len(s.byID),
		HighProbCount:      s.risk.countAbove(threshold),
		SatisfactionCounts: make(map[string]int),
	}
	for _, c := range s.byID {
		sum.SatisfactionCounts[strconv.Itoa(c.SatisfactionScore)]++
	}
	return sum, nil
}

// TopRisk implements Store.
func (s *MemoryStore) TopRisk(_ context.Context, n int) ([]customer.Customer, error) {
	defer observe("top_risk", time.Now())
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.risk.top(n)
	out := make([]customer.Customer, len(ids))
	for i, id := range ids {
		out[i] = s.withCount(s.byID[id])
	}
	return out, nil
}

// UpsertCustomer implements Store.
func (s *MemoryStore) UpsertCustomer(_ context.Context, c customer.Customer) error {
	defer observe("upsert_customer", time.Now())
	if err := c.Validate(); err != nil {
		recordError("upsert_customer")
		return err
	}
	c.Normalize()
	c.InterventionCount = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[c.ID]; ok {
		s.risk.remove(old.ID, old.Probability)
	} else {
		i, _ := slices.BinarySearch(s.ids, c.ID)
		s.ids = slices.Insert(s.ids, i, c.ID)
	}
	s.byID[c.ID] = c
	s.risk.insert(c.ID, c.Probability)
	return nil
}

// AddStatus implements Store.
func (s *MemoryStore) AddStatus(_ context.Context, customerID int64, description string) (customer.Status, error) {
	defer observe("add_status", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[customerID]; !ok {
		recordError("add_status")
		return customer.Status{}, ErrNotFound
	}
	s.nextID++
	st := customer.Status{
		ID:          s.nextID,
		CustomerID:  customerID,
		CreatedAt:   s.now().UTC(),
		Description: description,
	}
	s.statuses[customerID] = append(s.statuses[customerID], st)
	return st, nil
}

// Statuses implements Store.
func (s *MemoryStore) Statuses(_ context.Context, customerID int64) ([]customer.Status, error) {
	defer observe("statuses", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.byID[customerID]; !ok {
		return nil, ErrNotFound
	}
	src := s.statuses[customerID]
	out := make([]customer.Status, len(src))
	for i := range src {
		out[i] = src[len(src)-1-i]
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.risk.count(), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// withCount must be called with s.mu held.
func (s *MemoryStore) withCount(c customer.Customer) customer.Customer {
	c.InterventionCount = len(s.statuses[c.ID])
	return c
}

package marketplace

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Mutator edits a private copy of a listing. Returning an error aborts the update.
type Mutator func(l *Listing) error

// Store is the listing persistence collaborator. ConditionalUpdate applies
// mutate only when the stored version equals expectedVersion and bumps the
// version on commit; otherwise it returns ErrVersionConflict.
type Store interface {
	Get(ctx context.Context, id string) (*Listing, error)
	Create(ctx context.Context, l *Listing) error
	ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, mutate Mutator) (*Listing, error)
	Delete(ctx context.Context, id string, expectedVersion int64) error
	Query(ctx context.Context, f Filter) ([]*Listing, error)
	Stats(ctx context.Context) (Stats, error)
}

type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortAmount    SortField = "amount"
)

type Filter struct {
	Owner       string
	Counterpart string
	// Participant matches owner or counterpart.
	Participant string
	Status      Status
	Kind        Kind
	Category    Category
	Text        string
	SortBy      SortField
	Ascending   bool
	// Limit <= 0 means no limit.
	Limit int
}

type Stats struct {
	ByStatus     map[Status]int64 `json:"by_status"`
	FundedEscrow decimal.Decimal  `json:"funded_escrow"`
}

// MemoryStore keeps listings in process memory. Used by tests and the memory driver.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Listing
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Listing)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.items[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	return l.Clone(), nil
}

func (m *MemoryStore) Create(_ context.Context, l *Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[l.ID]; ok {
		return ErrVersionConflict
	}
	m.items[l.ID] = l.Clone()
	return nil
}

func (m *MemoryStore) ConditionalUpdate(_ context.Context, id string, expectedVersion int64, mutate Mutator) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.items[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	if cur.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = cur.Version + 1
	m.items[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.items[id]
	if !ok {
		return ErrListingNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, f Filter) ([]*Listing, error) {
	m.mu.RLock()
	out := make([]*Listing, 0, len(m.items))
	for _, l := range m.items {
		if f.matches(l) {
			out = append(out, l.Clone())
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		var less bool
		switch f.SortBy {
		case SortAmount:
			if a.Amount.Equal(b.Amount) {
				less = a.CreatedAt.Before(b.CreatedAt)
			} else {
				less = a.Amount.LessThan(b.Amount)
			}
		default:
			if a.CreatedAt.Equal(b.CreatedAt) {
				less = a.ID < b.ID
			} else {
				less = a.CreatedAt.Before(b.CreatedAt)
			}
		}
		if f.Ascending {
			return less
		}
		return !less
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{ByStatus: map[Status]int64{}, FundedEscrow: decimal.Zero}
	for _, l := range m.items {
		st.ByStatus[l.Status]++
		if l.Escrow.Status == EscrowFunded {
			st.FundedEscrow = st.FundedEscrow.Add(l.Escrow.CapturedAmount)
		}
	}
	return st, nil
}

func (f Filter) matches(l *Listing) bool {
	if f.Owner != "" && l.OwnerIdentity != f.Owner {
		return false
	}
	if f.Counterpart != "" && l.CounterpartIdentity != f.Counterpart {
		return false
	}
	if f.Participant != "" && !l.IsParticipant(f.Participant) {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.Kind != "" && l.Kind != f.Kind {
		return false
	}
	if f.Category != "" && l.Category != f.Category {
		return false
	}
	if f.Text != "" {
		q := strings.ToLower(f.Text)
		if !strings.Contains(strings.ToLower(l.Title), q) && !strings.Contains(strings.ToLower(l.Description), q) {
			return false
		}
	}
	return true
}

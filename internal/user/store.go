package user

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrProfileNotFound = errors.New("profile not found")

// Store persists profiles. Create keeps an existing profile and returns it.
type Store interface {
	Get(ctx context.Context, identity string) (*Profile, error)
	Create(ctx context.Context, p *Profile) (*Profile, error)
	UpdateDisplayName(ctx context.Context, identity, name string, now time.Time) (*Profile, error)
	// ApplyStats must ignore stats older than the stored ones.
	ApplyStats(ctx context.Context, identity string, st Stats, now time.Time) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]Profile)}
}

func (m *MemoryStore) Get(_ context.Context, identity string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[identity]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (m *MemoryStore) Create(_ context.Context, p *Profile) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.profiles[p.Identity]; ok {
		return &cur, nil
	}
	m.profiles[p.Identity] = *p
	out := *p
	return &out, nil
}

func (m *MemoryStore) UpdateDisplayName(_ context.Context, identity, name string, now time.Time) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[identity]
	if !ok {
		return nil, ErrProfileNotFound
	}
	p.DisplayName = name
	p.UpdatedAt = now
	m.profiles[identity] = p
	return &p, nil
}

// ApplyStats upserts so that stats for an identity that never fetched
// its profile are not lost. Stats that st.Supersedes rejects are dropped.
func (m *MemoryStore) ApplyStats(_ context.Context, identity string, st Stats, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[identity]
	if !ok {
		p = *newProfile(identity, now)
	} else if !st.Supersedes(&p) {
		return nil
	}
	p.AverageRating = st.AverageRating
	p.RatingCount = st.RatingCount
	p.CompletedJobs = st.CompletedJobs
	p.UpdatedAt = now
	m.profiles[identity] = p
	return nil
}

package messaging

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrMessageNotFound = errors.New("message not found")

type Store interface {
	Create(ctx context.Context, m Message) error
	Get(ctx context.Context, id string) (*Message, error)
	// List returns messages on listingID that viewer sent or received,
	// created strictly after since, oldest first.
	List(ctx context.Context, listingID, viewer string, since time.Time, limit int) ([]Message, error)
	// MarkRead sets read_at once and returns the stored message.
	MarkRead(ctx context.Context, id string, at time.Time) (*Message, error)
	UnreadCount(ctx context.Context, recipient string) (int64, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	msgs map[string]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{msgs: make(map[string]Message)}
}

func (s *MemoryStore) Create(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[m.ID] = m
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return &m, nil
}

func (s *MemoryStore) List(_ context.Context, listingID, viewer string, since time.Time, limit int) ([]Message, error) {
	s.mu.RLock()
	out := []Message{}
	for _, m := range s.msgs {
		if m.ListingID != listingID || (m.From != viewer && m.To != viewer) {
			continue
		}
		if !m.CreatedAt.After(since) {
			continue
		}
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id string, at time.Time) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	if m.ReadAt == nil {
		m.ReadAt = &at
		s.msgs[id] = m
	}
	return &m, nil
}

func (s *MemoryStore) UnreadCount(_ context.Context, recipient string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.msgs {
		if m.To == recipient && m.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

package alerts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Store persists notifications. Create ignores an id that already exists,
// which makes task retries harmless.
type Store interface {
	Create(ctx context.Context, n Notification) error
	List(ctx context.Context, recipient string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id, recipient string, at time.Time) error
}

type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Notification)}
}

func (m *MemoryStore) Create(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[n.ID]; !ok {
		m.items[n.ID] = n
	}
	return nil
}

// List returns newest first.
func (m *MemoryStore) List(_ context.Context, recipient string, limit int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Notification{}
	for _, n := range m.items {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkRead is idempotent for the recipient.
func (m *MemoryStore) MarkRead(_ context.Context, id, recipient string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.Recipient != recipient {
		return ErrNotificationNotFound
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
		m.items[id] = n
	}
	return nil
}

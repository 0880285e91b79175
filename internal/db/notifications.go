package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/skillmarket/internal/alerts"
)

type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

var _ alerts.Store = (*NotificationStore)(nil)

// Create ignores a notification id that already exists, so task retries are safe.
func (s *NotificationStore) Create(ctx context.Context, n alerts.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient, type, title, body, listing_id, reference, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.Recipient, n.Type, n.Title, n.Body, n.ListingID, n.Reference, n.CreatedAt, n.ReadAt)
	if err != nil {
		return fmt.Errorf("db.NotificationStore.Create: %w", err)
	}
	return nil
}

func (s *NotificationStore) List(ctx context.Context, recipient string, limit int) ([]alerts.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, recipient, type, title, body, listing_id, reference, created_at, read_at
		FROM notifications
		WHERE recipient = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("db.NotificationStore.List: %w", err)
	}
	defer rows.Close()

	out := []alerts.Notification{}
	for rows.Next() {
		var n alerts.Notification
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Type, &n.Title, &n.Body, &n.ListingID, &n.Reference, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, fmt.Errorf("db.NotificationStore.List: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NotificationStore) MarkRead(ctx context.Context, id, recipient string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient = $2
	`, id, recipient, at)
	if err != nil {
		return fmt.Errorf("db.NotificationStore.MarkRead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return alerts.ErrNotificationNotFound
	}
	return nil
}

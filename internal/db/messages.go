package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/skillmarket/internal/messaging"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

var _ messaging.Store = (*MessageStore)(nil)

const messageColumns = `id, listing_id, sender, recipient, body, created_at, read_at`

func scanMessage(row pgx.Row) (*messaging.Message, error) {
	var m messaging.Message
	if err := row.Scan(&m.ID, &m.ListingID, &m.From, &m.To, &m.Body, &m.CreatedAt, &m.ReadAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MessageStore) Create(ctx context.Context, m messaging.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.ListingID, m.From, m.To, m.Body, m.CreatedAt, m.ReadAt)
	if err != nil {
		return fmt.Errorf("db.MessageStore.Create: %w", err)
	}
	return nil
}

func (s *MessageStore) Get(ctx context.Context, id string) (*messaging.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, messaging.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db.MessageStore.Get: %w", err)
	}
	return m, nil
}

func (s *MessageStore) List(ctx context.Context, listingID, viewer string, since time.Time, limit int) ([]messaging.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE listing_id = $1 AND (sender = $2 OR recipient = $2) AND created_at > $3
		ORDER BY created_at ASC, id ASC
		LIMIT $4
	`, listingID, viewer, since, limit)
	if err != nil {
		return nil, fmt.Errorf("db.MessageStore.List: %w", err)
	}
	defer rows.Close()

	out := []messaging.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("db.MessageStore.List: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// MarkRead keeps the first read timestamp.
func (s *MessageStore) MarkRead(ctx context.Context, id string, at time.Time) (*messaging.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, `
		UPDATE messages SET read_at = COALESCE(read_at, $2)
		WHERE id = $1
		RETURNING `+messageColumns, id, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, messaging.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db.MessageStore.MarkRead: %w", err)
	}
	return m, nil
}

func (s *MessageStore) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient = $1 AND read_at IS NULL`, recipient).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db.MessageStore.UnreadCount: %w", err)
	}
	return n, nil
}

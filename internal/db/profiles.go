package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/skillmarket/internal/user"
)

type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

var _ user.Store = (*ProfileStore)(nil)

const profileColumns = `identity, display_name, average_rating, rating_count, completed_jobs, created_at, updated_at`

func scanProfile(row pgx.Row) (*user.Profile, error) {
	var p user.Profile
	err := row.Scan(&p.Identity, &p.DisplayName, &p.AverageRating, &p.RatingCount, &p.CompletedJobs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProfileStore) Get(ctx context.Context, identity string) (*user.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE identity = $1`, identity))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db.ProfileStore.Get: %w", err)
	}
	return p, nil
}

// Create inserts p unless a profile exists, and returns the stored row either way.
func (s *ProfileStore) Create(ctx context.Context, p *user.Profile) (*user.Profile, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identity) DO NOTHING
	`, p.Identity, p.DisplayName, p.AverageRating, p.RatingCount, p.CompletedJobs, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db.ProfileStore.Create: %w", err)
	}
	return s.Get(ctx, p.Identity)
}

func (s *ProfileStore) UpdateDisplayName(ctx context.Context, identity, name string, now time.Time) (*user.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, `
		UPDATE profiles SET display_name = $2, updated_at = $3
		WHERE identity = $1
		RETURNING `+profileColumns, identity, name, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db.ProfileStore.UpdateDisplayName: %w", err)
	}
	return p, nil
}

// ApplyStats overwrites the derived fields, creating a default profile if
// needed. A row already holding more ratings or completed jobs is left alone.
func (s *ProfileStore) ApplyStats(ctx context.Context, identity string, st user.Stats, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (identity) DO UPDATE SET
			average_rating = EXCLUDED.average_rating,
			rating_count = EXCLUDED.rating_count,
			completed_jobs = EXCLUDED.completed_jobs,
			updated_at = EXCLUDED.updated_at
		WHERE profiles.rating_count <= EXCLUDED.rating_count
			AND profiles.completed_jobs <= EXCLUDED.completed_jobs
	`, identity, user.DefaultDisplayName(identity), st.AverageRating, st.RatingCount, st.CompletedJobs, now)
	if err != nil {
		return fmt.Errorf("db.ProfileStore.ApplyStats: %w", err)
	}
	return nil
}

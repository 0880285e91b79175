package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns identity's profile, creating the default one on first use.
func (s *Service) GetOrCreate(ctx context.Context, identity string) (*Profile, error) {
	if identity == "" {
		return nil, marketplace.NewValidation("identity is required")
	}
	p, err := s.store.Get(ctx, identity)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, unavailable("GetOrCreate", err)
	}

	p, err = s.store.Create(ctx, newProfile(identity, s.now()))
	if err != nil {
		return nil, unavailable("GetOrCreate", err)
	}
	s.logger.Info("profile created", zap.String("identity", identity))
	return p, nil
}

// Get returns the stored profile, or an unsaved default for identities that
// have never been seen.
func (s *Service) Get(ctx context.Context, identity string) (*Profile, error) {
	p, err := s.store.Get(ctx, identity)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, ErrProfileNotFound):
		return newProfile(identity, s.now()), nil
	default:
		return nil, unavailable("Get", err)
	}
}

func (s *Service) UpdateDisplayName(ctx context.Context, identity, name string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > 50 {
		return nil, marketplace.NewValidation("display name must be between 1 and 50 characters")
	}
	if _, err := s.GetOrCreate(ctx, identity); err != nil {
		return nil, err
	}
	p, err := s.store.UpdateDisplayName(ctx, identity, name, s.now())
	if err != nil {
		return nil, unavailable("UpdateDisplayName", err)
	}
	return p, nil
}

// ApplyStats stores statistics re-derived by the marketplace.
func (s *Service) ApplyStats(ctx context.Context, identity string, averageRating float64, ratingCount, completedJobs int) error {
	st := Stats{AverageRating: averageRating, RatingCount: ratingCount, CompletedJobs: completedJobs}
	if err := s.store.ApplyStats(ctx, identity, st, s.now()); err != nil {
		return fmt.Errorf("user.Service.ApplyStats: %w", err)
	}
	s.logger.Debug("profile stats applied",
		zap.String("identity", identity),
		zap.Float64("average_rating", averageRating),
		zap.Int("rating_count", ratingCount),
		zap.Int("completed_jobs", completedJobs))
	return nil
}

func unavailable(method string, err error) error {
	return marketplace.NewUnavailable("profile store unavailable", fmt.Errorf("user.Service.%s: %w", method, err))
}

var _ marketplace.StatsSink = (*Service)(nil)

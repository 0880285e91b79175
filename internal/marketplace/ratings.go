package marketplace

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ParticipantStats is derived from the full history of completed listings.
type ParticipantStats struct {
	Identity      string  `json:"identity"`
	AverageRating float64 `json:"average_rating"`
	RatingCount   int     `json:"rating_count"`
	CompletedJobs int     `json:"completed_jobs"`
}

// SubmitRating records rater's score for the other participant of a
// completed listing and re-derives the ratee's average from every rating
// they have received.
func (s *Service) SubmitRating(ctx context.Context, listingID, rater string, score int, review string) (*Listing, error) {
	const op = "submit_rating"

	l, err := s.load(ctx, listingID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if l.Status != StatusCompleted {
		return nil, s.fail(op, NewInvalidState("ratings are only accepted on completed listings"))
	}
	if !l.IsParticipant(rater) {
		return nil, s.fail(op, NewUnauthorized("only the owner or the counterpart can rate"))
	}
	if _, ok := l.RatingBy(rater); ok {
		return nil, s.fail(op, NewDuplicateRating())
	}
	ratee := l.OtherParty(rater)
	rating, err := NewRating(rater, ratee, score, review, s.now())
	if err != nil {
		return nil, s.fail(op, err)
	}

	updated, err := s.update(ctx, op, l, func(next *Listing) error {
		if _, ok := next.RatingBy(rater); ok {
			return NewDuplicateRating()
		}
		next.appendRating(rating)
		next.UpdatedAt = rating.CreatedAt
		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	s.logger.Info("rating submitted",
		zap.String("listing_id", listingID),
		zap.String("rater", rater),
		zap.String("ratee", ratee),
		zap.Int("score", score))
	s.refreshStats(ctx, ratee)
	s.notify(ctx, Event{
		Type:       EventRatingReceived,
		ListingID:  updated.ID,
		Actor:      rater,
		Recipients: []string{ratee},
		Title:      updated.Title,
	})
	return updated, nil
}

// ComputeStats re-derives identity's statistics from every completed
// listing it took part in.
func (s *Service) ComputeStats(ctx context.Context, identity string) (ParticipantStats, error) {
	listings, err := s.store.Query(ctx, Filter{Participant: identity, Status: StatusCompleted})
	if err != nil {
		return ParticipantStats{}, s.storeError("compute_stats", err)
	}

	st := ParticipantStats{Identity: identity, CompletedJobs: len(listings)}
	sum := 0
	for _, l := range listings {
		for _, r := range l.ratings {
			if r.RaterIdentity == identity {
				continue
			}
			sum += r.Score
			st.RatingCount++
		}
	}
	if st.RatingCount > 0 {
		st.AverageRating = float64(sum) / float64(st.RatingCount)
	}
	return st, nil
}

// RecomputeStats re-derives and stores identity's statistics.
func (s *Service) RecomputeStats(ctx context.Context, identity string) (ParticipantStats, error) {
	st, err := s.ComputeStats(ctx, identity)
	if err != nil {
		return ParticipantStats{}, s.fail("recompute_stats", err)
	}
	if s.stats == nil {
		return st, nil
	}
	if err := s.stats.ApplyStats(ctx, identity, st.AverageRating, st.RatingCount, st.CompletedJobs); err != nil {
		return ParticipantStats{}, s.fail("recompute_stats",
			NewUnavailable("profile store unavailable", fmt.Errorf("marketplace.Service.RecomputeStats: %w", err)))
	}
	return st, nil
}

// refreshStats runs after a commit. A failure leaves a stale profile that
// the next recompute repairs, so it is logged rather than returned.
func (s *Service) refreshStats(ctx context.Context, identity string) {
	if identity == "" {
		return
	}
	if _, err := s.RecomputeStats(ctx, identity); err != nil {
		s.logger.Warn("participant stats refresh failed", zap.String("identity", identity), zap.Error(err))
	}
}

package marketplace

import (
	"context"

	"go.uber.org/zap"
)

// CompletionResult reports the state of the two-party confirmation.
type CompletionResult struct {
	Listing   *Listing `json:"listing"`
	Completed bool     `json:"completed"`
	// WaitingOn names the party whose confirmation is still missing.
	WaitingOn string `json:"waiting_on,omitempty"`
}

// ConfirmCompletion records actor's confirmation. When both sides have
// confirmed, the escrow payout, the completed status, completedAt and the
// escrow release record are applied as one unit; a payout failure leaves
// the listing untouched so the confirmation can be retried.
func (s *Service) ConfirmCompletion(ctx context.Context, listingID, actor string) (*CompletionResult, error) {
	const op = "confirm_completion"

	l, err := s.load(ctx, listingID)
	if err != nil {
		return nil, s.fail(op, err)
	}

	if l.Status == StatusCompleted && l.IsParticipant(actor) {
		return &CompletionResult{Listing: l, Completed: true}, nil
	}
	if l.Status != StatusInProgress {
		return nil, s.fail(op, NewInvalidState("only in-progress listings can be confirmed"))
	}
	if !l.IsParticipant(actor) {
		return nil, s.fail(op, NewUnauthorized("only the owner or the counterpart can confirm completion"))
	}

	isOwner := actor == l.OwnerIdentity
	if confirmedBy(l, isOwner) {
		return waiting(l), nil
	}

	bothConfirmed := confirmedBy(l, !isOwner)
	if bothConfirmed {
		if err := s.release(ctx, l); err != nil {
			return nil, s.fail(op, err)
		}
	}

	now := s.now()
	released := false
	updated, err := s.update(ctx, op, l, func(next *Listing) error {
		if next.Status != StatusInProgress {
			return NewInvalidState("listing is no longer in progress")
		}
		if isOwner {
			next.Completion.OwnerConfirmed = true
		} else {
			next.Completion.CounterpartConfirmed = true
		}
		next.UpdatedAt = now
		if !next.Completion.OwnerConfirmed || !next.Completion.CounterpartConfirmed {
			return nil
		}
		completedAt := now
		next.Status = StatusCompleted
		next.Completion.CompletedAt = &completedAt
		released = next.releaseEscrow(now)
		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	if updated.Status != StatusCompleted {
		s.logger.Info("completion confirmed, waiting on other party",
			zap.String("listing_id", updated.ID),
			zap.String("actor", actor))
		return waiting(updated), nil
	}

	s.transitioned(updated, StatusInProgress, actor)
	if released && s.recorder != nil {
		s.recorder.EscrowReleased()
	}
	s.refreshStats(ctx, updated.OwnerIdentity)
	s.refreshStats(ctx, updated.CounterpartIdentity)
	s.notify(ctx, Event{
		Type:       EventListingComplete,
		ListingID:  updated.ID,
		Actor:      actor,
		Recipients: []string{updated.OwnerIdentity, updated.CounterpartIdentity},
		Title:      updated.Title,
		Amount:     updated.Amount,
		Reference:  updated.Escrow.ExternalTxRef,
	})
	return &CompletionResult{Listing: updated, Completed: true}, nil
}

func confirmedBy(l *Listing, owner bool) bool {
	if owner {
		return l.Completion.OwnerConfirmed
	}
	return l.Completion.CounterpartConfirmed
}

func waiting(l *Listing) *CompletionResult {
	r := &CompletionResult{Listing: l}
	switch {
	case !l.Completion.OwnerConfirmed:
		r.WaitingOn = l.OwnerIdentity
	case !l.Completion.CounterpartConfirmed:
		r.WaitingOn = l.CounterpartIdentity
	}
	return r
}

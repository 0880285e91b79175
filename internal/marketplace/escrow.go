package marketplace

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// selection is the outcome of the select-counterpart step shared by bid
// acceptance and direct hire.
type selection struct {
	counterpart string
	bidID       string
	txRef       string
}

// AcceptBid selects the bidder as counterpart. With a zero amount the
// listing moves to in_progress at once. With a positive amount and a
// reference, funding and hire commit together; without a reference the
// listing stays open until FundAndHire.
func (s *Service) AcceptBid(ctx context.Context, listingID, bidID, actor, txRef string) (*Listing, error) {
	const op = "accept_bid"

	l, err := s.load(ctx, listingID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if actor != l.OwnerIdentity {
		return nil, s.fail(op, NewUnauthorized("only the owner can accept a bid"))
	}
	if l.Status != StatusOpen {
		return nil, s.fail(op, NewInvalidState("bids can only be accepted on open listings"))
	}
	if _, ok := l.AcceptedBid(); ok {
		return nil, s.fail(op, NewInvalidState("a bid has already been accepted"))
	}
	b, ok := l.Bid(bidID)
	if !ok {
		return nil, s.fail(op, NewNotFound("bid"))
	}
	if b.Status != BidPending {
		return nil, s.fail(op, NewInvalidState("only pending bids can be accepted"))
	}

	updated, err := s.selectCounterpart(ctx, op, l, actor, selection{
		counterpart: b.BidderIdentity,
		bidID:       bidID,
		txRef:       txRef,
	})
	return updated, s.fail(op, err)
}

// FundAndHire verifies the external payment and moves the listing to
// in_progress in one compare-and-set against its open state. When no
// counterpart was selected through a bid this is a direct hire.
func (s *Service) FundAndHire(ctx context.Context, listingID, actor, counterpart, txRef string) (*Listing, error) {
	const op = "fund_and_hire"

	l, err := s.load(ctx, listingID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if l.Status != StatusOpen {
		return nil, s.fail(op, NewInvalidState("only open listings can be hired"))
	}

	sel := selection{txRef: txRef}
	switch {
	case l.CounterpartIdentity != "":
		if counterpart != "" && counterpart != l.CounterpartIdentity {
			return nil, s.fail(op, NewValidation("counterpart does not match the accepted bid"))
		}
		if !l.IsParticipant(actor) {
			return nil, s.fail(op, NewUnauthorized("only the owner or the selected counterpart can fund this listing"))
		}
		sel.counterpart = l.CounterpartIdentity
	case actor == l.OwnerIdentity:
		if counterpart == "" {
			return nil, s.fail(op, NewValidation("counterpart is required"))
		}
		if counterpart == l.OwnerIdentity {
			return nil, s.fail(op, NewValidation("owner cannot hire themselves"))
		}
		sel.counterpart = counterpart
	case l.Kind == KindOffer:
		if counterpart != "" && counterpart != actor {
			return nil, s.fail(op, NewUnauthorized("only the owner can hire on behalf of another party"))
		}
		sel.counterpart = actor
	default:
		return nil, s.fail(op, NewUnauthorized("only the owner can hire on a request listing"))
	}
	if l.RequiresFunding() && txRef == "" {
		return nil, s.fail(op, NewValidation("external transaction reference is required"))
	}

	updated, err := s.selectCounterpart(ctx, op, l, actor, sel)
	return updated, s.fail(op, err)
}

// selectCounterpart is the single path from open to a chosen counterpart.
// Payment verification happens before the compare-and-set; the commit
// itself only flips fields on the listing document.
func (s *Service) selectCounterpart(ctx context.Context, op string, l *Listing, actor string, sel selection) (*Listing, error) {
	fund := l.RequiresFunding() && sel.txRef != ""
	hire := !l.RequiresFunding() || fund

	var capture Capture
	if fund {
		var err error
		if capture, err = s.verifyFunding(ctx, l, sel.txRef); err != nil {
			return nil, err
		}
	}

	now := s.now()
	updated, err := s.update(ctx, op, l, func(next *Listing) error {
		if next.Status != StatusOpen {
			return NewInvalidState("listing is no longer open")
		}
		switch b, ok := next.ActiveBidBy(sel.counterpart); {
		case sel.bidID != "":
			if cur, found := next.Bid(sel.bidID); !found || cur.Status != BidPending {
				return NewInvalidState("bid is no longer pending")
			}
			next.acceptBid(sel.bidID, now)
		case ok && b.Status == BidPending:
			next.acceptBid(b.ID, now)
		case next.CounterpartIdentity == "":
			next.rejectPendingBids(now)
		}
		next.CounterpartIdentity = sel.counterpart
		next.UpdatedAt = now

		if fund {
			fundedAt := now
			next.Escrow = Escrow{
				Status:         EscrowFunded,
				ExternalTxRef:  sel.txRef,
				CapturedAmount: capture.CapturedAmount,
				FundedAt:       &fundedAt,
			}
		}
		if hire {
			next.Status = StatusInProgress
		}
		return nil
	})
	if err != nil {
		if fund {
			s.unclaim(ctx, sel.txRef, l.ID)
		}
		return nil, err
	}

	if !hire {
		s.logger.Info("counterpart selected, awaiting funding",
			zap.String("listing_id", updated.ID),
			zap.String("counterpart", sel.counterpart))
		s.notify(ctx, Event{
			Type:       EventBidAccepted,
			ListingID:  updated.ID,
			Actor:      actor,
			Recipients: []string{sel.counterpart},
			Title:      updated.Title,
			Amount:     updated.Amount,
		})
		return updated, nil
	}

	s.transitioned(updated, StatusOpen, actor)
	s.notify(ctx, Event{
		Type:       EventListingHired,
		ListingID:  updated.ID,
		Actor:      actor,
		Recipients: []string{updated.OwnerIdentity, updated.CounterpartIdentity},
		Title:      updated.Title,
		Amount:     updated.Amount,
		Reference:  updated.Escrow.ExternalTxRef,
	})
	return updated, nil
}

func (s *Service) verifyFunding(ctx context.Context, l *Listing, ref string) (Capture, error) {
	minAmount := s.EscrowMinimum(l.Amount)

	start := time.Now()
	capture, err := s.rail.VerifyAndCapture(ctx, ref, minAmount)
	if s.recorder != nil {
		s.recorder.VerificationDuration(time.Since(start))
	}
	if err != nil {
		s.logger.Warn("payment verification failed",
			zap.String("listing_id", l.ID),
			zap.String("reference", ref),
			zap.Error(err))
		return Capture{}, NewPaymentVerificationFailed(IsRetryable(err), err)
	}
	if capture.CapturedAmount.LessThan(minAmount) {
		return Capture{}, NewPaymentVerificationFailed(false,
			fmt.Errorf("captured %s is below required %s", capture.CapturedAmount, minAmount))
	}

	if s.refs != nil {
		if err := s.refs.Claim(ctx, ref, l.ID); err != nil {
			s.logger.Warn("payment reference claim failed",
				zap.String("listing_id", l.ID),
				zap.String("reference", ref),
				zap.Error(err))
			return Capture{}, NewPaymentVerificationFailed(IsRetryable(err), err)
		}
	}
	return capture, nil
}

func (s *Service) unclaim(ctx context.Context, ref, listingID string) {
	if s.refs == nil {
		return
	}
	if err := s.refs.Unclaim(ctx, ref, listingID); err != nil {
		s.logger.Warn("payment reference unclaim failed",
			zap.String("listing_id", listingID),
			zap.String("reference", ref),
			zap.Error(err))
	}
}

// release pays out a funded escrow through the rail. It runs before the
// completing compare-and-set so a failure leaves the listing in progress.
// Released or unfunded escrows need no payout.
func (s *Service) release(ctx context.Context, l *Listing) error {
	if l.Escrow.Status != EscrowFunded {
		return nil
	}
	err := s.rail.Payout(ctx, Payout{
		ListingID: l.ID,
		Reference: l.Escrow.ExternalTxRef,
		Payee:     l.Provider(),
		Amount:    l.Amount,
	})
	if err != nil {
		s.logger.Error("escrow payout failed", zap.String("listing_id", l.ID), zap.Error(err))
		return NewUnavailable("escrow release failed", err)
	}
	return nil
}

// releaseEscrow records the release on the document. Calling it on a
// released escrow is a no-op.
func (l *Listing) releaseEscrow(now time.Time) bool {
	if l.Escrow.Status != EscrowFunded {
		return false
	}
	releasedAt := now
	l.Escrow.Status = EscrowReleased
	l.Escrow.ReleasedAt = &releasedAt
	return true
}

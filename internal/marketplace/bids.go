package marketplace

import (
	"context"

	"go.uber.org/zap"
)

// SubmitBid appends a pending bid from bidder to an open listing.
func (s *Service) SubmitBid(ctx context.Context, listingID, bidder, message string) (*Listing, Bid, error) {
	const op = "submit_bid"

	bid, err := NewBid(s.newID(), bidder, message, s.now())
	if err != nil {
		return nil, Bid{}, s.fail(op, err)
	}
	l, err := s.load(ctx, listingID)
	if err != nil {
		return nil, Bid{}, s.fail(op, err)
	}
	if err := checkBiddable(l, bidder); err != nil {
		return nil, Bid{}, s.fail(op, err)
	}

	updated, err := s.update(ctx, op, l, func(l *Listing) error {
		if err := checkBiddable(l, bidder); err != nil {
			return err
		}
		l.appendBid(bid)
		l.UpdatedAt = bid.CreatedAt
		return nil
	})
	if err != nil {
		return nil, Bid{}, s.fail(op, err)
	}

	s.logger.Info("bid submitted",
		zap.String("listing_id", listingID),
		zap.String("bid_id", bid.ID),
		zap.String("bidder", bidder))
	return updated, bid, nil
}

func checkBiddable(l *Listing, bidder string) error {
	if l.Status != StatusOpen {
		return NewInvalidState("bids are only accepted on open listings")
	}
	if _, ok := l.AcceptedBid(); ok || l.CounterpartIdentity != "" {
		return NewInvalidState("a counterpart has already been selected")
	}
	if bidder == l.OwnerIdentity {
		return NewUnauthorized("owners cannot bid on their own listing")
	}
	if _, ok := l.ActiveBidBy(bidder); ok {
		return NewDuplicateBid()
	}
	return nil
}

// EditBid replaces the message of the actor's pending bid.
func (s *Service) EditBid(ctx context.Context, listingID, bidID, actor, message string) (*Listing, error) {
	const op = "edit_bid"

	msg, err := validateBidMessage(message)
	if err != nil {
		return nil, s.fail(op, err)
	}
	l, err := s.load(ctx, listingID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if err := checkOwnPendingBid(l, bidID, actor); err != nil {
		return nil, s.fail(op, err)
	}

	now := s.now()
	updated, err := s.update(ctx, op, l, func(l *Listing) error {
		if err := checkOwnPendingBid(l, bidID, actor); err != nil {
			return err
		}
		l.setBidMessage(bidID, msg, now)
		l.UpdatedAt = now
		return nil
	})
	return updated, s.fail(op, err)
}

// WithdrawBid removes the actor's pending bid entirely.
func (s *Service) WithdrawBid(ctx context.Context, listingID, bidID, actor string) (*Listing, error) {
	const op = "withdraw_bid"

	l, err := s.load(ctx, listingID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if err := checkOwnPendingBid(l, bidID, actor); err != nil {
		return nil, s.fail(op, err)
	}

	now := s.now()
	updated, err := s.update(ctx, op, l, func(l *Listing) error {
		if err := checkOwnPendingBid(l, bidID, actor); err != nil {
			return err
		}
		l.removeBid(bidID)
		l.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	s.logger.Info("bid withdrawn", zap.String("listing_id", listingID), zap.String("bid_id", bidID))
	return updated, nil
}

func checkOwnPendingBid(l *Listing, bidID, actor string) error {
	b, ok := l.Bid(bidID)
	if !ok {
		return NewNotFound("bid")
	}
	if b.BidderIdentity != actor {
		return NewUnauthorized("only the bidder can change a bid")
	}
	if b.Status != BidPending || l.Status != StatusOpen {
		return NewInvalidState("only pending bids on open listings can be changed")
	}
	return nil
}

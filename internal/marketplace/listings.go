package marketplace

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateListing validates params and stores a new open listing owned by owner.
func (s *Service) CreateListing(ctx context.Context, owner string, p ListingParams) (*Listing, error) {
	l, err := NewListing(s.newID(), owner, s.currency, p, s.now())
	if err != nil {
		return nil, s.fail("create_listing", err)
	}
	if err := s.store.Create(ctx, l); err != nil {
		return nil, s.fail("create_listing", s.storeError("create_listing", err))
	}

	s.logger.Info("listing created",
		zap.String("listing_id", l.ID),
		zap.String("owner", owner),
		zap.String("kind", string(l.Kind)),
		zap.String("amount", l.Amount.String()))
	return l, nil
}

func (s *Service) GetListing(ctx context.Context, id string) (*Listing, error) {
	l, err := s.load(ctx, id)
	return l, s.fail("get_listing", err)
}

// QueryListings clamps the limit to the configured bounds.
func (s *Service) QueryListings(ctx context.Context, f Filter) ([]*Listing, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = s.defaultLimit
	case f.Limit > s.maxLimit:
		f.Limit = s.maxLimit
	}
	if f.SortBy == "" {
		f.SortBy = SortCreatedAt
	}
	if f.SortBy != SortCreatedAt && f.SortBy != SortAmount {
		return nil, s.fail("query_listings", NewValidation("sort must be created_at or amount"))
	}
	f.Text = strings.TrimSpace(f.Text)

	out, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, s.fail("query_listings", s.storeError("query_listings", err))
	}
	return out, nil
}

// Stats reports listing counts per status and the total escrow currently held.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, s.fail("stats", s.storeError("stats", err))
	}
	return st, nil
}

type ListingPatch struct {
	Title       *string
	Description *string
	Category    *Category
	Amount      *decimal.Decimal
	Location    *Location
}

// UpdateListing edits listing details. Only the owner may edit, only while
// the listing is open with no counterpart selected. The price is frozen
// once any bid is pending.
func (s *Service) UpdateListing(ctx context.Context, id, actor string, patch ListingPatch) (*Listing, error) {
	const op = "update_listing"

	l, err := s.load(ctx, id)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if actor != l.OwnerIdentity {
		return nil, s.fail(op, NewUnauthorized("only the owner can edit a listing"))
	}
	if l.Status != StatusOpen || l.CounterpartIdentity != "" {
		return nil, s.fail(op, NewInvalidState("listing can only be edited while open and unassigned"))
	}
	if patch.Amount != nil && !patch.Amount.Equal(l.Amount) && l.PendingBidCount() > 0 {
		return nil, s.fail(op, NewInvalidState("amount cannot change while bids are pending"))
	}

	title, description, category, amount, loc := l.Title, l.Description, l.Category, l.Amount, l.Location
	if patch.Title != nil {
		title = *patch.Title
	}
	if patch.Description != nil {
		description = *patch.Description
	}
	if patch.Category != nil {
		category = *patch.Category
	}
	if patch.Amount != nil {
		amount = *patch.Amount
	}
	if patch.Location != nil {
		loc = patch.Location
	}
	if err := validateDetails(title, description, category, amount, loc); err != nil {
		return nil, s.fail(op, err)
	}

	now := s.now()
	updated, err := s.update(ctx, op, l, func(l *Listing) error {
		l.Title = strings.TrimSpace(title)
		l.Description = strings.TrimSpace(description)
		l.Category = category
		l.Amount = amount
		l.Location = copyLocation(loc)
		l.UpdatedAt = now
		return nil
	})
	return updated, s.fail(op, err)
}

// CancelListing moves an open listing to cancelled and rejects pending bids.
func (s *Service) CancelListing(ctx context.Context, id, actor string) (*Listing, error) {
	const op = "cancel_listing"

	l, err := s.load(ctx, id)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if actor != l.OwnerIdentity {
		return nil, s.fail(op, NewUnauthorized("only the owner can cancel a listing"))
	}
	if !CanTransition(l.Status, StatusCancelled) {
		return nil, s.fail(op, NewInvalidState("only open listings can be cancelled"))
	}

	now := s.now()
	updated, err := s.update(ctx, op, l, func(l *Listing) error {
		l.Status = StatusCancelled
		l.rejectPendingBids(now)
		l.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}
	s.transitioned(updated, StatusOpen, actor)
	return updated, nil
}

// DeleteListing removes an open listing. Any other status is kept.
func (s *Service) DeleteListing(ctx context.Context, id, actor string) error {
	const op = "delete_listing"

	l, err := s.load(ctx, id)
	if err != nil {
		return s.fail(op, err)
	}
	if actor != l.OwnerIdentity {
		return s.fail(op, NewUnauthorized("only the owner can delete a listing"))
	}
	if l.Status != StatusOpen {
		return s.fail(op, NewInvalidState("only open listings can be deleted"))
	}
	if err := s.store.Delete(ctx, l.ID, l.Version); err != nil {
		return s.fail(op, s.storeError(op, err))
	}

	s.logger.Info("listing deleted", zap.String("listing_id", id), zap.String("actor", actor))
	return nil
}

// Vote toggles actor's interest vote on an open listing.
func (s *Service) Vote(ctx context.Context, id, actor string, d VoteDirection) (*Listing, error) {
	const op = "vote"

	if !d.Valid() {
		return nil, s.fail(op, NewValidation("direction must be up or down"))
	}
	l, err := s.load(ctx, id)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if actor == "" || actor == l.OwnerIdentity {
		return nil, s.fail(op, NewUnauthorized("owners cannot vote on their own listing"))
	}
	if l.Status != StatusOpen {
		return nil, s.fail(op, NewInvalidState("votes are only accepted on open listings"))
	}

	now := s.now()
	updated, err := s.update(ctx, op, l, func(l *Listing) error {
		l.applyVote(actor, d)
		l.UpdatedAt = now
		return nil
	})
	return updated, s.fail(op, err)
}

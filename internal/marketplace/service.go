package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Capture is the payment rail's confirmation of funds held in escrow.
type Capture struct {
	Reference      string
	CapturedAmount decimal.Decimal
}

type Payout struct {
	ListingID string
	Reference string
	Payee     string
	Amount    decimal.Decimal
}

// PaymentRail verifies external payments into escrow and pays them out.
// Payout must be idempotent per listing id.
type PaymentRail interface {
	VerifyAndCapture(ctx context.Context, reference string, minAmount decimal.Decimal) (Capture, error)
	Payout(ctx context.Context, p Payout) error
}

// ReferenceRegistry guarantees an external reference funds at most one listing.
// Every successful Claim holds the reference until a matching Unclaim; hire
// attempts for the same listing each take their own hold.
type ReferenceRegistry interface {
	Claim(ctx context.Context, reference, listingID string) error
	Unclaim(ctx context.Context, reference, listingID string) error
}

// StatsSink receives re-derived participant statistics. Recomputes for one
// identity may land out of order; a sink keeps the stats with the larger
// rating and completed-job counts.
type StatsSink interface {
	ApplyStats(ctx context.Context, identity string, averageRating float64, ratingCount, completedJobs int) error
}

type EventType string

const (
	EventBidAccepted     EventType = "bid.accepted"
	EventListingHired    EventType = "listing.hired"
	EventListingComplete EventType = "listing.completed"
	EventRatingReceived  EventType = "rating.received"
	EventMessageNew      EventType = "message.new"
)

type Event struct {
	Type       EventType       `json:"type"`
	ListingID  string          `json:"listing_id"`
	Actor      string          `json:"actor"`
	Recipients []string        `json:"recipients"`
	Title      string          `json:"title"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Recorder receives operational measurements.
type Recorder interface {
	Transition(from, to string)
	OperationError(op, kind string)
	VerificationDuration(d time.Duration)
	EscrowReleased()
}

type Service struct {
	store    Store
	rail     PaymentRail
	refs     ReferenceRegistry
	stats    StatsSink
	notifier Notifier
	recorder Recorder
	logger   *zap.Logger

	now          func() time.Time
	newID        func() string
	currency     string
	feeBPS       int64
	defaultLimit int
	maxLimit     int
}

type Option func(*Service)

func WithReferenceRegistry(r ReferenceRegistry) Option { return func(s *Service) { s.refs = r } }
func WithNotifier(n Notifier) Option                   { return func(s *Service) { s.notifier = n } }
func WithRecorder(r Recorder) Option                   { return func(s *Service) { s.recorder = r } }
func WithClock(now func() time.Time) Option            { return func(s *Service) { s.now = now } }
func WithIDGenerator(f func() string) Option           { return func(s *Service) { s.newID = f } }
func WithCurrency(c string) Option                     { return func(s *Service) { s.currency = c } }

// WithFeeBPS sets the platform fee in basis points added to the escrow minimum.
func WithFeeBPS(bps int64) Option { return func(s *Service) { s.feeBPS = bps } }

func WithQueryLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		s.defaultLimit = defaultLimit
		s.maxLimit = maxLimit
	}
}

func NewService(store Store, rail PaymentRail, stats StatsSink, logger *zap.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("marketplace.NewService: store is required")
	}
	if rail == nil {
		return nil, errors.New("marketplace.NewService: payment rail is required")
	}
	if logger == nil {
		return nil, errors.New("marketplace.NewService: logger is required")
	}

	s := &Service{
		store:        store,
		rail:         rail,
		stats:        stats,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return uuid.New().String() },
		currency:     "USDC",
		defaultLimit: 50,
		maxLimit:     200,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EscrowMinimum is the amount the rail must have captured, fee included.
func (s *Service) EscrowMinimum(amount decimal.Decimal) decimal.Decimal {
	if s.feeBPS == 0 {
		return amount
	}
	fee := amount.Mul(decimal.NewFromInt(s.feeBPS)).Div(decimal.NewFromInt(10000)).RoundUp(6)
	return amount.Add(fee)
}

func (s *Service) load(ctx context.Context, id string) (*Listing, error) {
	l, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeError("load", err)
	}
	return l, nil
}

// update runs a conditional update against the version the caller read.
func (s *Service) update(ctx context.Context, op string, read *Listing, mutate Mutator) (*Listing, error) {
	l, err := s.store.ConditionalUpdate(ctx, read.ID, read.Version, mutate)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			s.logger.Debug("lost listing update race",
				zap.String("op", op),
				zap.String("listing_id", read.ID),
				zap.Int64("version", read.Version))
		}
		return nil, s.storeError(op, err)
	}
	return l, nil
}

func (s *Service) storeError(op string, err error) error {
	var me *Error
	switch {
	case errors.As(err, &me):
		return me
	case errors.Is(err, ErrListingNotFound):
		return NewNotFound("listing")
	case errors.Is(err, ErrVersionConflict):
		return NewConflict(err)
	}
	return NewUnavailable("listing store unavailable", fmt.Errorf("marketplace.Service.%s: %w", op, err))
}

func (s *Service) fail(op string, err error) error {
	if err != nil && s.recorder != nil {
		s.recorder.OperationError(op, string(KindOf(err)))
	}
	return err
}

func (s *Service) transitioned(l *Listing, from Status, actor string) {
	if s.recorder != nil {
		s.recorder.Transition(string(from), string(l.Status))
	}
	s.logger.Info("listing transition",
		zap.String("listing_id", l.ID),
		zap.String("from", string(from)),
		zap.String("to", string(l.Status)),
		zap.String("actor", actor),
		zap.Int64("version", l.Version))
}

func (s *Service) notify(ctx context.Context, evt Event) {
	if s.notifier == nil {
		return
	}
	evt.OccurredAt = s.now()
	if err := s.notifier.Notify(ctx, evt); err != nil {
		s.logger.Warn("notification enqueue failed",
			zap.String("type", string(evt.Type)),
			zap.String("listing_id", evt.ListingID),
			zap.Error(err))
	}
}

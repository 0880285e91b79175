package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

const maxBodyLength = 2000

// ListingLookup resolves the listing a thread belongs to.
type ListingLookup interface {
	GetListing(ctx context.Context, id string) (*marketplace.Listing, error)
}

type Service struct {
	store    Store
	listings ListingLookup
	hub      *Hub
	notifier marketplace.Notifier
	logger   *zap.Logger

	now          func() time.Time
	pollInterval time.Duration
	pageLimit    int
}

type Option func(*Service)

func WithHub(h *Hub) Option                      { return func(s *Service) { s.hub = h } }
func WithNotifier(n marketplace.Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithClock(now func() time.Time) Option      { return func(s *Service) { s.now = now } }

func WithPolling(interval time.Duration, limit int) Option {
	return func(s *Service) {
		s.pollInterval = interval
		s.pageLimit = limit
	}
}

func NewService(store Store, listings ListingLookup, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		listings:     listings,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		pollInterval: 5 * time.Second,
		pageLimit:    100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send posts a message on a listing thread. One side must be the listing owner.
func (s *Service) Send(ctx context.Context, listingID, from, to, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if n := utf8.RuneCountInString(body); n == 0 || n > maxBodyLength {
		return nil, marketplace.NewValidation("message body must be between 1 and 2000 characters")
	}
	if to == "" || from == to {
		return nil, marketplace.NewValidation("recipient must be another identity")
	}
	l, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if from != l.OwnerIdentity && to != l.OwnerIdentity {
		return nil, marketplace.NewUnauthorized("messages must be sent to or from the listing owner")
	}

	m := Message{
		ID:        uuid.New().String(),
		ListingID: listingID,
		From:      from,
		To:        to,
		Body:      body,
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, unavailable("Send", err)
	}

	s.logger.Info("message sent",
		zap.String("listing_id", listingID),
		zap.String("message_id", m.ID),
		zap.String("from", from),
		zap.String("to", to))
	if s.hub != nil {
		s.hub.Broadcast(listingID, Event{Type: EventMessageNew, Data: m}, from, to)
	}
	if s.notifier != nil {
		evt := marketplace.Event{
			Type:       marketplace.EventMessageNew,
			ListingID:  listingID,
			Actor:      from,
			Recipients: []string{to},
			Title:      l.Title,
			OccurredAt: m.CreatedAt,
		}
		if err := s.notifier.Notify(ctx, evt); err != nil {
			s.logger.Warn("notification enqueue failed", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
	return &m, nil
}

// List returns viewer's messages on a listing created after since.
func (s *Service) List(ctx context.Context, listingID, viewer string, since time.Time, limit int) (*Page, error) {
	if _, err := s.listings.GetListing(ctx, listingID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.pageLimit {
		limit = s.pageLimit
	}

	msgs, err := s.store.List(ctx, listingID, viewer, since, limit)
	if err != nil {
		return nil, unavailable("List", err)
	}
	next := since
	if len(msgs) > 0 {
		next = msgs[len(msgs)-1].CreatedAt
	}
	return &Page{
		Messages:            msgs,
		NextSince:           next,
		PollIntervalSeconds: int(s.pollInterval / time.Second),
	}, nil
}

// MarkRead marks a message read for its recipient. Repeating it is a no-op.
func (s *Service) MarkRead(ctx context.Context, messageID, viewer string) (*Message, error) {
	m, err := s.store.Get(ctx, messageID)
	if errors.Is(err, ErrMessageNotFound) {
		return nil, marketplace.NewNotFound("message")
	}
	if err != nil {
		return nil, unavailable("MarkRead", err)
	}
	if m.To != viewer {
		return nil, marketplace.NewUnauthorized("only the recipient can mark a message read")
	}
	if m.ReadAt != nil {
		return m, nil
	}

	m, err = s.store.MarkRead(ctx, messageID, s.now())
	if err != nil {
		return nil, unavailable("MarkRead", err)
	}
	if s.hub != nil {
		s.hub.Broadcast(m.ListingID, Event{Type: EventMessageRead, Data: m}, m.From, m.To)
	}
	return m, nil
}

func (s *Service) UnreadCount(ctx context.Context, viewer string) (int64, error) {
	n, err := s.store.UnreadCount(ctx, viewer)
	if err != nil {
		return 0, unavailable("UnreadCount", err)
	}
	return n, nil
}

func unavailable(method string, err error) error {
	return marketplace.NewUnavailable("message store unavailable", fmt.Errorf("messaging.Service.%s: %w", method, err))
}

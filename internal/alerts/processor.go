package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

var notificationNamespace = uuid.MustParse("5b0c6f4e-8d2f-4e55-9a53-2f1c0d7b9e10")

// Processor consumes notification tasks and stores one row per recipient.
type Processor struct {
	store  Store
	logger *zap.Logger
}

func NewProcessor(store Store, logger *zap.Logger) *Processor {
	return &Processor{store: store, logger: logger}
}

// NewServeMux routes every notification task type to p.
func NewServeMux(p *Processor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, typ := range taskTypes {
		mux.HandleFunc(typ, p.HandleEvent)
	}
	return mux
}

// NewServer returns an asynq server that only listens on the notifications queue.
func NewServer(opt asynq.RedisConnOpt, concurrency int, logger *zap.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueNotifications: 10},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
			logger.Error("notification task failed", zap.String("type", t.Type()), zap.Error(err))
		}),
	})
}

func (p *Processor) HandleEvent(ctx context.Context, t *asynq.Task) error {
	var evt marketplace.Event
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return fmt.Errorf("alerts.Processor.HandleEvent: %v: %w", err, asynq.SkipRetry)
	}

	title, body := render(evt)
	for _, r := range evt.Recipients {
		n := Notification{
			ID:        notificationID(evt, r).String(),
			Recipient: r,
			Type:      string(evt.Type),
			Title:     title,
			Body:      body,
			ListingID: evt.ListingID,
			Reference: evt.Reference,
			CreatedAt: evt.OccurredAt,
		}
		if err := p.store.Create(ctx, n); err != nil {
			return fmt.Errorf("alerts.Processor.HandleEvent: %w", err)
		}
	}

	p.logger.Info("notification stored",
		zap.String("type", string(evt.Type)),
		zap.String("listing_id", evt.ListingID),
		zap.Int("recipients", len(evt.Recipients)))
	return nil
}

// notificationID is stable across retries of the same task.
func notificationID(evt marketplace.Event, recipient string) uuid.UUID {
	key := fmt.Sprintf("%s|%s|%s|%d", evt.Type, evt.ListingID, recipient, evt.OccurredAt.UnixNano())
	return uuid.NewSHA1(notificationNamespace, []byte(key))
}

func render(evt marketplace.Event) (string, string) {
	switch evt.Type {
	case marketplace.EventBidAccepted:
		return "Your bid was accepted", fmt.Sprintf("Your bid on %q was accepted. The listing starts once escrow is funded.", evt.Title)
	case marketplace.EventListingHired:
		return "Work has started", fmt.Sprintf("%q is now in progress.", evt.Title)
	case marketplace.EventListingComplete:
		return "Listing completed", fmt.Sprintf("%q is completed and %s was released from escrow.", evt.Title, evt.Amount.String())
	case marketplace.EventRatingReceived:
		return "New rating", fmt.Sprintf("You received a rating for %q.", evt.Title)
	case marketplace.EventMessageNew:
		return "New message", fmt.Sprintf("New message about %q.", evt.Title)
	}
	return string(evt.Type), evt.Title
}

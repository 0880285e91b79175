package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

// Enqueuer is the part of *asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier turns marketplace events into asynq tasks.
type Notifier struct {
	client Enqueuer
	logger *zap.Logger
}

func NewNotifier(client Enqueuer, logger *zap.Logger) *Notifier {
	return &Notifier{client: client, logger: logger}
}

// NewEventTask builds the task for evt.
func NewEventTask(evt marketplace.Event) (*asynq.Task, error) {
	typ, ok := taskTypes[evt.Type]
	if !ok {
		return nil, fmt.Errorf("alerts.NewEventTask: unknown event type %q", evt.Type)
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("alerts.NewEventTask: %w", err)
	}
	return asynq.NewTask(typ, b, asynq.Queue(QueueNotifications), asynq.MaxRetry(5)), nil
}

// Notify enqueues evt. Recipients equal to the actor are skipped.
func (n *Notifier) Notify(ctx context.Context, evt marketplace.Event) error {
	recipients := evt.Recipients[:0:0]
	for _, r := range evt.Recipients {
		if r != "" && r != evt.Actor {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return nil
	}
	evt.Recipients = recipients

	task, err := NewEventTask(evt)
	if err != nil {
		return err
	}
	info, err := n.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("alerts.Notifier.Notify: %w", err)
	}
	n.logger.Debug("notification enqueued",
		zap.String("type", task.Type()),
		zap.String("listing_id", evt.ListingID),
		zap.String("task_id", info.ID))
	return nil
}

var _ marketplace.Notifier = (*Notifier)(nil)

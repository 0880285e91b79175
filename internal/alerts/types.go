package alerts

import (
	"time"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

// QueueNotifications is the asynq queue every notification task goes to.
const QueueNotifications = "notifications"

// Task type constants
const (
	TaskBidAccepted      = "notify:bid_accepted"
	TaskListingHired     = "notify:listing_hired"
	TaskListingCompleted = "notify:listing_completed"
	TaskRatingReceived   = "notify:rating_received"
	TaskMessageNew       = "notify:message_new"
)

var taskTypes = map[marketplace.EventType]string{
	marketplace.EventBidAccepted:     TaskBidAccepted,
	marketplace.EventListingHired:    TaskListingHired,
	marketplace.EventListingComplete: TaskListingCompleted,
	marketplace.EventRatingReceived:  TaskRatingReceived,
	marketplace.EventMessageNew:      TaskMessageNew,
}

// Notification is one in-app notice for one recipient.
type Notification struct {
	ID        string     `json:"id"`
	Recipient string     `json:"recipient"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ListingID string     `json:"listing_id,omitempty"`
	Reference string     `json:"reference,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}

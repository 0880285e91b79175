package messaging

import "time"

type Message struct {
	ID        string     `json:"id"`
	ListingID string     `json:"listing_id"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}

// Page is one poll result. Clients pass NextSince back as since on the
// next poll, PollIntervalSeconds apart.
type Page struct {
	Messages            []Message `json:"messages"`
	NextSince           time.Time `json:"next_since"`
	PollIntervalSeconds int       `json:"poll_interval_seconds"`
}

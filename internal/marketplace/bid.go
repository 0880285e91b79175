package marketplace

import (
	"strings"
	"time"
	"unicode/utf8"
)

type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

type Bid struct {
	ID             string    `json:"id"`
	BidderIdentity string    `json:"bidder_identity"`
	Message        string    `json:"message"`
	Status         BidStatus `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewBid returns a pending bid after validating its message.
func NewBid(id, bidder, message string, now time.Time) (Bid, error) {
	if strings.TrimSpace(bidder) == "" {
		return Bid{}, NewValidation("bidder identity is required")
	}
	msg, err := validateBidMessage(message)
	if err != nil {
		return Bid{}, err
	}
	return Bid{
		ID:             id,
		BidderIdentity: bidder,
		Message:        msg,
		Status:         BidPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func validateBidMessage(message string) (string, error) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return "", NewValidation("bid message is required")
	}
	if utf8.RuneCountInString(msg) > 2000 {
		return "", NewValidation("bid message must be at most 2000 characters")
	}
	return msg, nil
}

func (l *Listing) appendBid(b Bid) {
	l.bids = append(l.bids, b)
}

func (l *Listing) setBidMessage(id, message string, now time.Time) bool {
	i := l.bidIndex(id)
	if i < 0 {
		return false
	}
	l.bids[i].Message = message
	l.bids[i].UpdatedAt = now
	return true
}

func (l *Listing) removeBid(id string) bool {
	i := l.bidIndex(id)
	if i < 0 {
		return false
	}
	l.bids = append(l.bids[:i], l.bids[i+1:]...)
	return true
}

// acceptBid marks id accepted and every other pending bid rejected.
func (l *Listing) acceptBid(id string, now time.Time) {
	for i := range l.bids {
		switch {
		case l.bids[i].ID == id:
			l.bids[i].Status = BidAccepted
			l.bids[i].UpdatedAt = now
		case l.bids[i].Status == BidPending:
			l.bids[i].Status = BidRejected
			l.bids[i].UpdatedAt = now
		}
	}
}

func (l *Listing) rejectPendingBids(now time.Time) {
	for i := range l.bids {
		if l.bids[i].Status == BidPending {
			l.bids[i].Status = BidRejected
			l.bids[i].UpdatedAt = now
		}
	}
}

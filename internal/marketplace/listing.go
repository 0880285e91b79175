package marketplace

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindOffer   Kind = "offer"
	KindRequest Kind = "request"
)

// ParseKind accepts the wire names and the legacy service/need aliases.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offer", "service":
		return KindOffer, true
	case "request", "need":
		return KindRequest, true
	}
	return "", false
}

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// CanTransition reports whether from -> to is an edge of the listing lifecycle.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusOpen:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted
	}
	return false
}

type Category string

var categories = map[Category]bool{
	"development": true,
	"design":      true,
	"writing":     true,
	"teaching":    true,
	"business":    true,
	"other":       true,
}

func ValidCategory(c Category) bool { return categories[c] }

type EscrowStatus string

const (
	EscrowNotFunded EscrowStatus = "not_funded"
	EscrowFunded    EscrowStatus = "funded"
	EscrowReleased  EscrowStatus = "released"
)

type Escrow struct {
	Status         EscrowStatus    `json:"status"`
	ExternalTxRef  string          `json:"external_tx_ref,omitempty"`
	CapturedAmount decimal.Decimal `json:"captured_amount"`
	FundedAt       *time.Time      `json:"funded_at,omitempty"`
	ReleasedAt     *time.Time      `json:"released_at,omitempty"`
}

type Completion struct {
	OwnerConfirmed       bool       `json:"owner_confirmed"`
	CounterpartConfirmed bool       `json:"counterpart_confirmed"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Listing is a unit of work offered or requested on the marketplace.
// Bids, ratings and votes are owned by the listing and reachable only
// through accessors; mutation happens inside a store conditional update.
type Listing struct {
	ID                  string
	OwnerIdentity       string
	CounterpartIdentity string
	Kind                Kind
	Title               string
	Description         string
	Category            Category
	Amount              decimal.Decimal
	Currency            string
	Location            *Location
	Status              Status
	Escrow              Escrow
	Completion          Completion
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time

	bids    []Bid
	ratings []Rating
	votes   map[string]VoteDirection
}

type ListingParams struct {
	Title       string
	Description string
	Kind        Kind
	Category    Category
	Amount      decimal.Decimal
	Location    *Location
}

// NewListing validates params and returns an open listing with every field set.
func NewListing(id, owner, currency string, p ListingParams, now time.Time) (*Listing, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, NewValidation("owner identity is required")
	}
	if p.Kind != KindOffer && p.Kind != KindRequest {
		return nil, NewValidation("kind must be offer or request")
	}
	if err := validateDetails(p.Title, p.Description, p.Category, p.Amount, p.Location); err != nil {
		return nil, err
	}
	if currency == "" {
		return nil, NewValidation("currency is required")
	}

	return &Listing{
		ID:            id,
		OwnerIdentity: owner,
		Kind:          p.Kind,
		Title:         strings.TrimSpace(p.Title),
		Description:   strings.TrimSpace(p.Description),
		Category:      p.Category,
		Amount:        p.Amount,
		Currency:      currency,
		Location:      copyLocation(p.Location),
		Status:        StatusOpen,
		Escrow:        Escrow{Status: EscrowNotFunded, CapturedAmount: decimal.Zero},
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
		bids:          []Bid{},
		ratings:       []Rating{},
		votes:         map[string]VoteDirection{},
	}, nil
}

func validateDetails(title, description string, category Category, amount decimal.Decimal, loc *Location) error {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > 120 {
		return NewValidation("title must be between 1 and 120 characters")
	}
	description = strings.TrimSpace(description)
	if description == "" || utf8.RuneCountInString(description) > 5000 {
		return NewValidation("description must be between 1 and 5000 characters")
	}
	if !ValidCategory(category) {
		return NewValidation("unknown category")
	}
	if amount.IsNegative() {
		return NewValidation("amount must not be negative")
	}
	if loc != nil && (loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180) {
		return NewValidation("location is out of range")
	}
	return nil
}

// IsParticipant reports whether identity is the owner or the selected counterpart.
func (l *Listing) IsParticipant(identity string) bool {
	return identity != "" && (identity == l.OwnerIdentity || identity == l.CounterpartIdentity)
}

// OtherParty returns the participant opposite to identity.
func (l *Listing) OtherParty(identity string) string {
	if identity == l.OwnerIdentity {
		return l.CounterpartIdentity
	}
	return l.OwnerIdentity
}

// Provider is the party that performs the work and receives the escrow.
func (l *Listing) Provider() string {
	if l.Kind == KindOffer {
		return l.OwnerIdentity
	}
	return l.CounterpartIdentity
}

func (l *Listing) RequiresFunding() bool {
	return l.Amount.IsPositive()
}

// Bids returns a copy of the bids in insertion order.
func (l *Listing) Bids() []Bid {
	out := make([]Bid, len(l.bids))
	copy(out, l.bids)
	return out
}

func (l *Listing) Bid(id string) (Bid, bool) {
	if i := l.bidIndex(id); i >= 0 {
		return l.bids[i], true
	}
	return Bid{}, false
}

// ActiveBidBy returns the bidder's non-rejected bid, if any.
func (l *Listing) ActiveBidBy(bidder string) (Bid, bool) {
	for _, b := range l.bids {
		if b.BidderIdentity == bidder && b.Status != BidRejected {
			return b, true
		}
	}
	return Bid{}, false
}

func (l *Listing) AcceptedBid() (Bid, bool) {
	for _, b := range l.bids {
		if b.Status == BidAccepted {
			return b, true
		}
	}
	return Bid{}, false
}

func (l *Listing) PendingBidCount() int {
	n := 0
	for _, b := range l.bids {
		if b.Status == BidPending {
			n++
		}
	}
	return n
}

func (l *Listing) Ratings() []Rating {
	out := make([]Rating, len(l.ratings))
	copy(out, l.ratings)
	return out
}

func (l *Listing) RatingBy(rater string) (Rating, bool) {
	for _, r := range l.ratings {
		if r.RaterIdentity == rater {
			return r, true
		}
	}
	return Rating{}, false
}

func (l *Listing) VoteOf(voter string) (VoteDirection, bool) {
	d, ok := l.votes[voter]
	return d, ok
}

// Score is ups minus downs over the current vote set.
func (l *Listing) Score() int {
	score := 0
	for _, d := range l.votes {
		score += d.weight()
	}
	return score
}

func (l *Listing) bidIndex(id string) int {
	for i := range l.bids {
		if l.bids[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (l *Listing) Clone() *Listing {
	c := *l
	c.Location = copyLocation(l.Location)
	c.Escrow.FundedAt = copyTime(l.Escrow.FundedAt)
	c.Escrow.ReleasedAt = copyTime(l.Escrow.ReleasedAt)
	c.Completion.CompletedAt = copyTime(l.Completion.CompletedAt)
	c.bids = l.Bids()
	c.ratings = l.Ratings()
	c.votes = make(map[string]VoteDirection, len(l.votes))
	for k, v := range l.votes {
		c.votes[k] = v
	}
	return &c
}

func copyLocation(l *Location) *Location {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// listingDocument is the wire and storage shape of a Listing.
type listingDocument struct {
	ID                  string                   `json:"id"`
	OwnerIdentity       string                   `json:"owner_identity"`
	CounterpartIdentity string                   `json:"counterpart_identity,omitempty"`
	Kind                Kind                     `json:"kind"`
	Title               string                   `json:"title"`
	Description         string                   `json:"description"`
	Category            Category                 `json:"category"`
	Amount              decimal.Decimal          `json:"amount"`
	Currency            string                   `json:"currency"`
	Location            *Location                `json:"location,omitempty"`
	Status              Status                   `json:"status"`
	Escrow              Escrow                   `json:"escrow"`
	Completion          Completion               `json:"completion"`
	Bids                []Bid                    `json:"bids"`
	Ratings             []Rating                 `json:"ratings"`
	Votes               map[string]VoteDirection `json:"votes"`
	Score               int                      `json:"score"`
	Version             int64                    `json:"version"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
}

func (l *Listing) MarshalJSON() ([]byte, error) {
	return json.Marshal(listingDocument{
		ID:                  l.ID,
		OwnerIdentity:       l.OwnerIdentity,
		CounterpartIdentity: l.CounterpartIdentity,
		Kind:                l.Kind,
		Title:               l.Title,
		Description:         l.Description,
		Category:            l.Category,
		Amount:              l.Amount,
		Currency:            l.Currency,
		Location:            l.Location,
		Status:              l.Status,
		Escrow:              l.Escrow,
		Completion:          l.Completion,
		Bids:                l.Bids(),
		Ratings:             l.Ratings(),
		Votes:               l.votes,
		Score:               l.Score(),
		Version:             l.Version,
		CreatedAt:           l.CreatedAt,
		UpdatedAt:           l.UpdatedAt,
	})
}

func (l *Listing) UnmarshalJSON(data []byte) error {
	var doc listingDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*l = Listing{
		ID:                  doc.ID,
		OwnerIdentity:       doc.OwnerIdentity,
		CounterpartIdentity: doc.CounterpartIdentity,
		Kind:                doc.Kind,
		Title:               doc.Title,
		Description:         doc.Description,
		Category:            doc.Category,
		Amount:              doc.Amount,
		Currency:            doc.Currency,
		Location:            doc.Location,
		Status:              doc.Status,
		Escrow:              doc.Escrow,
		Completion:          doc.Completion,
		Version:             doc.Version,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
		bids:                doc.Bids,
		ratings:             doc.Ratings,
		votes:               doc.Votes,
	}
	if l.bids == nil {
		l.bids = []Bid{}
	}
	if l.ratings == nil {
		l.ratings = []Rating{}
	}
	if l.votes == nil {
		l.votes = map[string]VoteDirection{}
	}
	return nil
}

package marketplace

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Rating struct {
	RaterIdentity string    `json:"rater_identity"`
	RateeIdentity string    `json:"ratee_identity"`
	Score         int       `json:"score"`
	Review        string    `json:"review,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewRating(rater, ratee string, score int, review string, now time.Time) (Rating, error) {
	if score < 1 || score > 5 {
		return Rating{}, NewValidation("score must be an integer between 1 and 5")
	}
	review = strings.TrimSpace(review)
	if utf8.RuneCountInString(review) > 1000 {
		return Rating{}, NewValidation("review must be at most 1000 characters")
	}
	return Rating{
		RaterIdentity: rater,
		RateeIdentity: ratee,
		Score:         score,
		Review:        review,
		CreatedAt:     now,
	}, nil
}

func (l *Listing) appendRating(r Rating) {
	l.ratings = append(l.ratings, r)
}

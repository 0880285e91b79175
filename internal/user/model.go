package user

import "time"

// Profile is the public face of a wallet identity. Rating and job
// counters are derived from completed listings and only written by ApplyStats.
type Profile struct {
	Identity      string    `json:"identity"`
	DisplayName   string    `json:"display_name"`
	AverageRating float64   `json:"average_rating"`
	RatingCount   int       `json:"rating_count"`
	CompletedJobs int       `json:"completed_jobs"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Stats is the derived part of a profile.
type Stats struct {
	AverageRating float64
	RatingCount   int
	CompletedJobs int
}

// Supersedes reports whether st was derived from at least as much history
// as the profile holds. Ratings and completions are never removed, so both
// counters only grow and a recompute that read older history loses.
func (st Stats) Supersedes(p *Profile) bool {
	return st.RatingCount >= p.RatingCount && st.CompletedJobs >= p.CompletedJobs
}

// DefaultDisplayName shortens a wallet address to 0x1234...abcd.
func DefaultDisplayName(identity string) string {
	if len(identity) <= 12 {
		return identity
	}
	return identity[:6] + "..." + identity[len(identity)-4:]
}

func newProfile(identity string, now time.Time) *Profile {
	return &Profile{
		Identity:    identity,
		DisplayName: DefaultDisplayName(identity),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

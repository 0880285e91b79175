package marketplace

type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

func (d VoteDirection) weight() int {
	switch d {
	case VoteUp:
		return 1
	case VoteDown:
		return -1
	}
	return 0
}

// applyVote records a vote. Repeating the current direction clears the
// vote, the opposite direction flips it. Returns the voter's resulting
// direction and whether one is set.
func (l *Listing) applyVote(voter string, d VoteDirection) (VoteDirection, bool) {
	if l.votes == nil {
		l.votes = map[string]VoteDirection{}
	}
	if cur, ok := l.votes[voter]; ok && cur == d {
		delete(l.votes, voter)
		return "", false
	}
	l.votes[voter] = d
	return d, true
}

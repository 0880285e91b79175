package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type railError struct {
	retryable bool
	msg       string
}

func (e *railError) Error() string   { return e.msg }
func (e *railError) Retryable() bool { return e.retryable }

type fakeRail struct {
	mu        sync.Mutex
	captures  map[string]decimal.Decimal
	pending   map[string]bool
	payoutErr error
	payouts   map[string]int
	verifies  int
	// hold, when set, runs before each verification without the lock held.
	hold func()
}

func newFakeRail() *fakeRail {
	return &fakeRail{
		captures: map[string]decimal.Decimal{},
		pending:  map[string]bool{},
		payouts:  map[string]int{},
	}
}

func (f *fakeRail) fund(ref string, amount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures[ref] = decimal.RequireFromString(amount)
}

func (f *fakeRail) VerifyAndCapture(_ context.Context, ref string, minAmount decimal.Decimal) (Capture, error) {
	if f.hold != nil {
		f.hold()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies++

	if f.pending[ref] {
		return Capture{}, &railError{retryable: true, msg: "reference pending"}
	}
	amt, ok := f.captures[ref]
	if !ok {
		return Capture{}, &railError{msg: "unknown reference"}
	}
	if amt.LessThan(minAmount) {
		return Capture{}, &railError{msg: fmt.Sprintf("captured %s below %s", amt, minAmount)}
	}
	return Capture{Reference: ref, CapturedAmount: amt}, nil
}

func (f *fakeRail) Payout(_ context.Context, p Payout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payoutErr != nil {
		return f.payoutErr
	}
	f.payouts[p.ListingID]++
	return nil
}

func (f *fakeRail) payoutCount(listingID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payouts[listingID]
}

func (f *fakeRail) setPayoutErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payoutErr = err
}

type fakeRefs struct {
	mu      sync.Mutex
	claims  map[string]string
	holders map[string]int
}

func newFakeRefs() *fakeRefs {
	return &fakeRefs{claims: map[string]string{}, holders: map[string]int{}}
}

func (r *fakeRefs) Claim(_ context.Context, ref, listingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.claims[ref]; ok && owner != listingID {
		return errors.New("reference already funds another listing")
	}
	r.claims[ref] = listingID
	r.holders[ref]++
	return nil
}

func (r *fakeRefs) Unclaim(_ context.Context, ref, listingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claims[ref] != listingID {
		return nil
	}
	if r.holders[ref]--; r.holders[ref] <= 0 {
		delete(r.claims, ref)
		delete(r.holders, ref)
	}
	return nil
}

type fakeStats struct {
	mu    sync.Mutex
	stats map[string]ParticipantStats
}

func (f *fakeStats) ApplyStats(_ context.Context, identity string, avg float64, count, completed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.stats[identity]; ok && (count < cur.RatingCount || completed < cur.CompletedJobs) {
		return nil
	}
	f.stats[identity] = ParticipantStats{Identity: identity, AverageRating: avg, RatingCount: count, CompletedJobs: completed}
	return nil
}

func (f *fakeStats) get(identity string) ParticipantStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[identity]
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *fakeNotifier) Notify(_ context.Context, evt Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

func (n *fakeNotifier) count(t EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == t {
			c++
		}
	}
	return c
}

type fakeRecorder struct {
	mu          sync.Mutex
	transitions map[string]int
	errors      map[string]int
	releases    int
}

func (r *fakeRecorder) Transition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[from+"->"+to]++
}

func (r *fakeRecorder) OperationError(op, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[op+":"+kind]++
}

func (r *fakeRecorder) VerificationDuration(time.Duration) {}

func (r *fakeRecorder) EscrowReleased() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases++
}

func (r *fakeRecorder) snapshot() (map[string]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.transitions))
	for k, v := range r.transitions {
		out[k] = v
	}
	return out, r.releases
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	rail     *fakeRail
	refs     *fakeRefs
	stats    *fakeStats
	notifier *fakeNotifier
	recorder *fakeRecorder
}

// stepClock returns strictly increasing timestamps.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func setupService(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		store:    NewMemoryStore(),
		rail:     newFakeRail(),
		refs:     newFakeRefs(),
		stats:    &fakeStats{stats: map[string]ParticipantStats{}},
		notifier: &fakeNotifier{},
		recorder: &fakeRecorder{transitions: map[string]int{}, errors: map[string]int{}},
	}

	base := []Option{
		WithReferenceRegistry(f.refs),
		WithNotifier(f.notifier),
		WithRecorder(f.recorder),
		WithClock(stepClock()),
	}
	svc, err := NewService(f.store, f.rail, f.stats, zaptest.NewLogger(t), append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func wallet() string {
	return "0x" + gofakeit.LetterN(40)
}

func (f *fixture) createListing(t *testing.T, owner string, kind Kind, amount string) *Listing {
	t.Helper()
	l, err := f.svc.CreateListing(context.Background(), owner, ListingParams{
		Title:       gofakeit.JobTitle(),
		Description: gofakeit.Sentence(12),
		Kind:        kind,
		Category:    "development",
		Amount:      decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return l
}

// hired returns an in-progress listing between owner and counterpart.
func (f *fixture) hired(t *testing.T, owner, counterpart, amount string) *Listing {
	t.Helper()
	ctx := context.Background()
	l := f.createListing(t, owner, KindOffer, amount)

	ref := ""
	if decimal.RequireFromString(amount).IsPositive() {
		ref = "tx-" + l.ID
		f.rail.fund(ref, amount)
	}
	l, err := f.svc.FundAndHire(ctx, l.ID, owner, counterpart, ref)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, l.Status)
	return l
}

// completed returns a completed listing between owner and counterpart.
func (f *fixture) completed(t *testing.T, owner, counterpart, amount string) *Listing {
	t.Helper()
	ctx := context.Background()
	l := f.hired(t, owner, counterpart, amount)

	_, err := f.svc.ConfirmCompletion(ctx, l.ID, owner)
	require.NoError(t, err)
	res, err := f.svc.ConfirmCompletion(ctx, l.ID, counterpart)
	require.NoError(t, err)
	require.True(t, res.Completed)
	return res.Listing
}

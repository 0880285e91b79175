package marketplace

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRating(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected before completion", func(t *testing.T) {
		f := setupService(t)
		owner, worker := wallet(), wallet()
		l := f.hired(t, owner, worker, "10")

		_, err := f.svc.SubmitRating(ctx, l.ID, owner, 5, "")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("records rating for the other party", func(t *testing.T) {
		f := setupService(t)
		owner, worker := wallet(), wallet()
		done := f.completed(t, owner, worker, "10")

		updated, err := f.svc.SubmitRating(ctx, done.ID, owner, 4, "solid work")
		require.NoError(t, err)
		r, ok := updated.RatingBy(owner)
		require.True(t, ok)
		assert.Equal(t, worker, r.RateeIdentity)
		assert.Equal(t, 4, r.Score)

		st := f.stats.get(worker)
		assert.Equal(t, 4.0, st.AverageRating)
		assert.Equal(t, 1, st.RatingCount)
		assert.Equal(t, 1, st.CompletedJobs)
		assert.Equal(t, 1, f.notifier.count(EventRatingReceived))
	})

	t.Run("duplicate rating", func(t *testing.T) {
		f := setupService(t)
		owner, worker := wallet(), wallet()
		done := f.completed(t, owner, worker, "10")

		_, err := f.svc.SubmitRating(ctx, done.ID, worker, 5, "")
		require.NoError(t, err)
		_, err = f.svc.SubmitRating(ctx, done.ID, worker, 1, "changed my mind")
		assert.ErrorIs(t, err, ErrDuplicateRating)

		after, err := f.svc.GetListing(ctx, done.ID)
		require.NoError(t, err)
		assert.Len(t, after.Ratings(), 1)
	})

	t.Run("score and review bounds", func(t *testing.T) {
		f := setupService(t)
		owner, worker := wallet(), wallet()
		done := f.completed(t, owner, worker, "10")

		for _, score := range []int{0, 6, -1} {
			_, err := f.svc.SubmitRating(ctx, done.ID, owner, score, "")
			assert.ErrorIs(t, err, ErrValidation, "score %d", score)
		}
		_, err := f.svc.SubmitRating(ctx, done.ID, owner, 3, strings.Repeat("x", 1001))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("stranger cannot rate", func(t *testing.T) {
		f := setupService(t)
		done := f.completed(t, wallet(), wallet(), "10")

		_, err := f.svc.SubmitRating(ctx, done.ID, wallet(), 5, "")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestAverageIsRecomputedFromHistory(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	worker := wallet()
	clientA, clientB := wallet(), wallet()

	first := f.completed(t, clientA, worker, "10")
	second := f.completed(t, clientB, worker, "0")

	_, err := f.svc.SubmitRating(ctx, first.ID, clientA, 5, "great")
	require.NoError(t, err)
	_, err = f.svc.SubmitRating(ctx, second.ID, clientB, 3, "ok")
	require.NoError(t, err)

	st := f.stats.get(worker)
	assert.Equal(t, 4.0, st.AverageRating)
	assert.Equal(t, 2, st.RatingCount)
	assert.Equal(t, 2, st.CompletedJobs)

	// the worker's own ratings of clients never count toward their average
	_, err = f.svc.SubmitRating(ctx, first.ID, worker, 1, "")
	require.NoError(t, err)

	recomputed, err := f.svc.RecomputeStats(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, st, recomputed)

	client := f.stats.get(clientA)
	assert.Equal(t, 1.0, client.AverageRating)
	assert.Equal(t, 1, client.RatingCount)
}

func TestComputeStatsWithoutHistory(t *testing.T) {
	f := setupService(t)

	st, err := f.svc.ComputeStats(context.Background(), wallet())
	require.NoError(t, err)
	assert.Zero(t, st.AverageRating)
	assert.Zero(t, st.RatingCount)
	assert.Zero(t, st.CompletedJobs)
}

func TestComputeStatsKeepsFullPrecision(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	worker := wallet()

	for _, score := range []int{5, 4, 4} {
		client := wallet()
		done := f.completed(t, client, worker, "0")
		_, err := f.svc.SubmitRating(ctx, done.ID, client, score, "")
		require.NoError(t, err)
	}

	st, err := f.svc.ComputeStats(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, float64(13)/3, st.AverageRating)
}

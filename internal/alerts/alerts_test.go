package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
	mware "github.com/sudo-init-do/skillmarket/internal/middleware"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: QueueNotifications}, nil
}

func completedEvent() marketplace.Event {
	return marketplace.Event{
		Type:       marketplace.EventListingComplete,
		ListingID:  "l-1",
		Actor:      "0xworker",
		Recipients: []string{"0xowner", "0xworker"},
		Title:      "Logo design",
		Amount:     decimal.NewFromInt(10),
		Reference:  "tx-1",
		OccurredAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewEventTask(t *testing.T) {
	task, err := NewEventTask(completedEvent())
	require.NoError(t, err)
	assert.Equal(t, TaskListingCompleted, task.Type())

	var evt marketplace.Event
	require.NoError(t, json.Unmarshal(task.Payload(), &evt))
	assert.Equal(t, "l-1", evt.ListingID)

	_, err = NewEventTask(marketplace.Event{Type: "listing.exploded"})
	assert.Error(t, err)
}

func TestNotifierSkipsActor(t *testing.T) {
	q := &fakeEnqueuer{}
	n := NewNotifier(q, zaptest.NewLogger(t))

	require.NoError(t, n.Notify(context.Background(), completedEvent()))
	require.Len(t, q.tasks, 1)

	var evt marketplace.Event
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &evt))
	assert.Equal(t, []string{"0xowner"}, evt.Recipients)

	self := completedEvent()
	self.Recipients = []string{self.Actor}
	require.NoError(t, n.Notify(context.Background(), self))
	assert.Len(t, q.tasks, 1)
}

func TestNotifierEnqueueFailure(t *testing.T) {
	n := NewNotifier(&fakeEnqueuer{err: errors.New("redis down")}, zaptest.NewLogger(t))
	assert.Error(t, n.Notify(context.Background(), completedEvent()))
}

func TestProcessorIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	p := NewProcessor(store, zaptest.NewLogger(t))
	task, err := NewEventTask(completedEvent())
	require.NoError(t, err)

	require.NoError(t, p.HandleEvent(context.Background(), task))
	require.NoError(t, p.HandleEvent(context.Background(), task))

	items, err := store.List(context.Background(), "0xowner", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Listing completed", items[0].Title)
	assert.Contains(t, items[0].Body, "Logo design")
	assert.Nil(t, items[0].ReadAt)
}

func TestProcessorRejectsGarbage(t *testing.T) {
	p := NewProcessor(NewMemoryStore(), zaptest.NewLogger(t))
	err := p.HandleEvent(context.Background(), asynq.NewTask(TaskMessageNew, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNotificationHandlers(t *testing.T) {
	store := NewMemoryStore()
	p := NewProcessor(store, zaptest.NewLogger(t))
	task, err := NewEventTask(completedEvent())
	require.NoError(t, err)
	require.NoError(t, p.HandleEvent(context.Background(), task))
	items, err := store.List(context.Background(), "0xowner", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	e := echo.New()
	api := e.Group("", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(mware.IdentityKey, c.Request().Header.Get("X-Test-Identity"))
			return next(c)
		}
	})
	NewHandler(store).Register(api)

	do := func(method, path, identity string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("X-Test-Identity", identity)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "/notifications", "0xowner")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), items[0].ID)

	rec = do(http.MethodPost, "/notifications/"+items[0].ID+"/read", "0xstranger")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for i := 0; i < 2; i++ {
		rec = do(http.MethodPost, "/notifications/"+items[0].ID+"/read", "0xowner")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec = do(http.MethodGet, "/notifications", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

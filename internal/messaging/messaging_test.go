package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
	mware "github.com/sudo-init-do/skillmarket/internal/middleware"
)

type fakeListings map[string]*marketplace.Listing

func (f fakeListings) GetListing(_ context.Context, id string) (*marketplace.Listing, error) {
	l, ok := f[id]
	if !ok {
		return nil, marketplace.NewNotFound("listing")
	}
	return l, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []marketplace.Event
}

func (n *recordingNotifier) Notify(_ context.Context, evt marketplace.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

type fixture struct {
	svc      *Service
	hub      *Hub
	notifier *recordingNotifier
	owner    string
	listing  string
	clock    time.Time
}

func wallet() string { return "0x" + gofakeit.LetterN(40) }

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		notifier: &recordingNotifier{},
		owner:    wallet(),
		listing:  "listing-1",
		clock:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	listings := fakeListings{f.listing: {ID: f.listing, OwnerIdentity: f.owner, Title: "Paint fence"}}
	logger := zaptest.NewLogger(t)
	f.hub = NewHub(logger)
	f.svc = NewService(NewMemoryStore(), listings, logger,
		WithHub(f.hub),
		WithNotifier(f.notifier),
		WithPolling(3*time.Second, 2),
		WithClock(func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		}),
	)
	return f
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("to the owner", func(t *testing.T) {
		f := setup(t)
		other := wallet()
		m, err := f.svc.Send(ctx, f.listing, other, f.owner, "  is this still available?  ")
		require.NoError(t, err)
		assert.Equal(t, "is this still available?", m.Body)
		assert.Nil(t, m.ReadAt)

		require.Len(t, f.notifier.events, 1)
		evt := f.notifier.events[0]
		assert.Equal(t, marketplace.EventMessageNew, evt.Type)
		assert.Equal(t, []string{f.owner}, evt.Recipients)
		assert.Equal(t, other, evt.Actor)
	})

	t.Run("neither side is the owner", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Send(ctx, f.listing, wallet(), wallet(), "hi")
		assert.ErrorIs(t, err, marketplace.ErrUnauthorized)
	})

	t.Run("validation", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Send(ctx, f.listing, f.owner, f.owner, "self")
		assert.ErrorIs(t, err, marketplace.ErrValidation)
		_, err = f.svc.Send(ctx, f.listing, wallet(), f.owner, "   ")
		assert.ErrorIs(t, err, marketplace.ErrValidation)
		_, err = f.svc.Send(ctx, f.listing, wallet(), f.owner, strings.Repeat("a", 2001))
		assert.ErrorIs(t, err, marketplace.ErrValidation)
		assert.Empty(t, f.notifier.events)
	})

	t.Run("unknown listing", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Send(ctx, "missing", wallet(), f.owner, "hi")
		assert.ErrorIs(t, err, marketplace.ErrNotFound)
	})
}

func TestListPolling(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a, b := wallet(), wallet()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Send(ctx, f.listing, a, f.owner, gofakeit.Sentence(5))
		require.NoError(t, err)
	}
	_, err := f.svc.Send(ctx, f.listing, f.owner, b, "for b only")
	require.NoError(t, err)

	page, err := f.svc.List(ctx, f.listing, a, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, 3, page.PollIntervalSeconds)
	assert.True(t, page.Messages[0].CreatedAt.Before(page.Messages[1].CreatedAt))
	assert.Equal(t, page.Messages[1].CreatedAt, page.NextSince)

	next, err := f.svc.List(ctx, f.listing, a, page.NextSince, 0)
	require.NoError(t, err)
	require.Len(t, next.Messages, 1)

	empty, err := f.svc.List(ctx, f.listing, a, next.NextSince, 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Messages)
	assert.Equal(t, next.NextSince, empty.NextSince)

	forB, err := f.svc.List(ctx, f.listing, b, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, forB.Messages, 1)
	assert.Equal(t, "for b only", forB.Messages[0].Body)
}

func TestMarkReadAndUnread(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sender := wallet()

	m, err := f.svc.Send(ctx, f.listing, sender, f.owner, "ping")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.listing, sender, f.owner, "ping again")
	require.NoError(t, err)

	n, err := f.svc.UnreadCount(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = f.svc.MarkRead(ctx, m.ID, sender)
	assert.ErrorIs(t, err, marketplace.ErrUnauthorized)

	read, err := f.svc.MarkRead(ctx, m.ID, f.owner)
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)

	again, err := f.svc.MarkRead(ctx, m.ID, f.owner)
	require.NoError(t, err)
	assert.Equal(t, *read.ReadAt, *again.ReadAt)

	n, err = f.svc.UnreadCount(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.MarkRead(ctx, "nope", f.owner)
	assert.ErrorIs(t, err, marketplace.ErrNotFound)
}

func setupRouter(t *testing.T) (*echo.Echo, *fixture) {
	t.Helper()
	f := setup(t)
	e := echo.New()
	e.Validator = mware.NewRequestValidator()
	api := e.Group("", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id := c.Request().Header.Get("X-Test-Identity"); id != "" {
				c.Set(mware.IdentityKey, id)
			}
			return next(c)
		}
	})
	NewHandler(f.svc, f.hub).Register(api)
	return e, f
}

func doRequest(e *echo.Echo, method, path, identity, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if identity != "" {
		req.Header.Set("X-Test-Identity", identity)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandlers(t *testing.T) {
	e, f := setupRouter(t)
	sender := wallet()

	rec := doRequest(e, http.MethodPost, "/listings/"+f.listing+"/messages", sender, `{"to":"`+f.owner+`","body":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))

	rec = doRequest(e, http.MethodGet, "/listings/"+f.listing+"/messages", f.owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, m.ID, page.Messages[0].ID)

	rec = doRequest(e, http.MethodGet, "/listings/"+f.listing+"/messages?since=yesterday", f.owner, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodGet, "/messages/unread", f.owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread":1}`, rec.Body.String())

	rec = doRequest(e, http.MethodPost, "/messages/"+m.ID+"/read", sender, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doRequest(e, http.MethodPost, "/messages/"+m.ID+"/read", f.owner, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodPost, "/listings/"+f.listing+"/messages", "", `{"to":"x","body":"hello"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = doRequest(e, http.MethodPost, "/listings/"+f.listing+"/messages", sender, `{"body":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebsocketDelivery(t *testing.T) {
	e, f := setupRouter(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	sender, outsider := wallet(), wallet()
	dial := func(identity string) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/listings/" + f.listing + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-Test-Identity": []string{identity}})
		require.NoError(t, err)
		return conn
	}
	ownerConn := dial(f.owner)
	defer ownerConn.Close()
	outsiderConn := dial(outsider)
	defer outsiderConn.Close()

	require.Eventually(t, func() bool { return f.hub.Connections(f.listing) == 2 }, time.Second, 10*time.Millisecond)

	_, err := f.svc.Send(context.Background(), f.listing, sender, f.owner, "over the wire")
	require.NoError(t, err)

	// the owner sees presence events first, then the message
	_ = ownerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var evt struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, ownerConn.ReadJSON(&evt))
		if evt.Type != EventMessageNew {
			continue
		}
		var m Message
		require.NoError(t, json.Unmarshal(evt.Data, &m))
		assert.Equal(t, "over the wire", m.Body)
		break
	}

	// the owner leaving is not announced to the outsider either
	require.NoError(t, ownerConn.Close())
	require.Eventually(t, func() bool { return f.hub.Connections(f.listing) == 1 }, time.Second, 10*time.Millisecond)

	_ = outsiderConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var evt Event
	assert.Error(t, outsiderConn.ReadJSON(&evt), "outsider received %s", evt.Type)

	rec := doRequest(e, http.MethodGet, "/listings/missing/ws", f.owner, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

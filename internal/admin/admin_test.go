package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
	mware "github.com/sudo-init-do/skillmarket/internal/middleware"
	"github.com/sudo-init-do/skillmarket/internal/user"
)

type noRail struct{}

func (noRail) VerifyAndCapture(context.Context, string, decimal.Decimal) (marketplace.Capture, error) {
	return marketplace.Capture{}, errors.New("no rail")
}

func (noRail) Payout(context.Context, marketplace.Payout) error { return nil }

func wallet() string { return "0x" + gofakeit.LetterN(40) }

func setup(t *testing.T) (*echo.Echo, *marketplace.Service, *user.Service) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	profiles := user.NewService(user.NewMemoryStore(), logger)
	svc, err := marketplace.NewService(marketplace.NewMemoryStore(), noRail{}, profiles, logger)
	require.NoError(t, err)

	e := echo.New()
	g := e.Group("/admin", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(mware.RoleKey, c.Request().Header.Get("X-Test-Role"))
			return next(c)
		}
	}, mware.AdminGuard)
	NewHandler(svc).Register(g)
	return e, svc, profiles
}

func get(e *echo.Echo, method, path, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Test-Role", role)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createFree(t *testing.T, svc *marketplace.Service, owner string) *marketplace.Listing {
	t.Helper()
	l, err := svc.CreateListing(context.Background(), owner, marketplace.ListingParams{
		Title:       gofakeit.JobTitle(),
		Description: gofakeit.Sentence(8),
		Kind:        marketplace.KindOffer,
		Category:    "other",
		Amount:      decimal.Zero,
	})
	require.NoError(t, err)
	return l
}

func TestStatsAndListings(t *testing.T) {
	e, svc, _ := setup(t)
	ctx := context.Background()
	owner := wallet()

	createFree(t, svc, owner)
	l := createFree(t, svc, owner)
	_, err := svc.CancelListing(ctx, l.ID, owner)
	require.NoError(t, err)

	rec := get(e, http.MethodGet, "/admin/stats", mware.RoleMember)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(e, http.MethodGet, "/admin/stats", mware.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats struct {
		Listings     int64            `json:"listings"`
		ByStatus     map[string]int64 `json:"by_status"`
		FundedEscrow string           `json:"funded_escrow"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.Listings)
	assert.Equal(t, int64(1), stats.ByStatus["open"])
	assert.Equal(t, int64(1), stats.ByStatus["cancelled"])
	assert.Equal(t, "0", stats.FundedEscrow)

	rec = get(e, http.MethodGet, "/admin/listings?status=cancelled", mware.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Count)

	rec = get(e, http.MethodGet, "/admin/listings?limit=-2", mware.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(e, http.MethodGet, "/admin/listings/"+l.ID, mware.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = get(e, http.MethodGet, "/admin/listings/missing", mware.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecomputeProfile(t *testing.T) {
	e, svc, profiles := setup(t)
	ctx := context.Background()
	owner, client := wallet(), wallet()

	l := createFree(t, svc, owner)
	_, err := svc.FundAndHire(ctx, l.ID, client, "", "")
	require.NoError(t, err)
	_, err = svc.ConfirmCompletion(ctx, l.ID, owner)
	require.NoError(t, err)
	_, err = svc.ConfirmCompletion(ctx, l.ID, client)
	require.NoError(t, err)

	// drift the stored profile, then repair it
	require.NoError(t, profiles.ApplyStats(ctx, owner, 0, 0, 0))

	rec := get(e, http.MethodPost, "/admin/profiles/"+owner+"/recompute", mware.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p, err := profiles.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CompletedJobs)
}

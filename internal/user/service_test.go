package user

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
	mware "github.com/sudo-init-do/skillmarket/internal/middleware"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryStore(), zaptest.NewLogger(t))
}

func TestGetOrCreate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	identity := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	p, err := svc.GetOrCreate(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "0x5aAe...eAed", p.DisplayName)
	assert.Zero(t, p.CompletedJobs)

	again, err := svc.GetOrCreate(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, p.CreatedAt, again.CreatedAt)

	_, err = svc.GetOrCreate(ctx, "")
	assert.ErrorIs(t, err, marketplace.ErrValidation)
}

func TestUpdateDisplayName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	identity := "0x" + gofakeit.LetterN(40)

	p, err := svc.UpdateDisplayName(ctx, identity, "  "+gofakeit.FirstName()+"  ")
	require.NoError(t, err)
	assert.NotContains(t, p.DisplayName, " ")

	_, err = svc.UpdateDisplayName(ctx, identity, "   ")
	assert.ErrorIs(t, err, marketplace.ErrValidation)
	_, err = svc.UpdateDisplayName(ctx, identity, strings.Repeat("n", 51))
	assert.ErrorIs(t, err, marketplace.ErrValidation)
}

func TestApplyStatsOverwritesDerivedFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	identity := "0x" + gofakeit.LetterN(40)

	require.NoError(t, svc.ApplyStats(ctx, identity, 4.5, 2, 3))
	require.NoError(t, svc.ApplyStats(ctx, identity, 4.0, 3, 3))

	p, err := svc.Get(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, 4.0, p.AverageRating)
	assert.Equal(t, 3, p.RatingCount)
	assert.Equal(t, 3, p.CompletedJobs)

	_, err = svc.UpdateDisplayName(ctx, identity, "builder")
	require.NoError(t, err)
	p, err = svc.Get(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "builder", p.DisplayName)
	assert.Equal(t, 3, p.CompletedJobs)
}

func TestProfileHandlers(t *testing.T) {
	svc := newTestService(t)
	identity := "0x" + gofakeit.LetterN(40)

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
	NewHandler(svc).Register(e.Group(""), api)

	req := httptest.NewRequest(http.MethodPatch, "/profiles/me", strings.NewReader(`{"display_name":"ada"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Test-Identity", identity)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/profiles/"+identity, nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"display_name":"ada"`)

	req = httptest.NewRequest(http.MethodPatch, "/profiles/me", strings.NewReader(`{"display_name":"ada"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

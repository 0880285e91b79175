package admin

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

// GET /admin/listings?status=&owner=&participant=&limit=
func (h *Handler) ListListings(c echo.Context) error {
	f := marketplace.Filter{
		Owner:       c.QueryParam("owner"),
		Participant: c.QueryParam("participant"),
		Status:      marketplace.Status(c.QueryParam("status")),
		SortBy:      marketplace.SortCreatedAt,
	}
	if lim := c.QueryParam("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		f.Limit = n
	}

	listings, err := h.market.QueryListings(c.Request().Context(), f)
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": listings, "count": len(listings)})
}

// GET /admin/listings/:id returns the full document including escrow state.
func (h *Handler) GetListing(c echo.Context) error {
	l, err := h.market.GetListing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

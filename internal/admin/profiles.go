package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

// POST /admin/profiles/:identity/recompute
func (h *Handler) RecomputeProfile(c echo.Context) error {
	identity := c.Param("identity")
	if identity == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identity required"})
	}
	st, err := h.market.RecomputeStats(c.Request().Context(), identity)
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

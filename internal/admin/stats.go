package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	st, err := h.market.Stats(c.Request().Context())
	if err != nil {
		return marketplace.RespondError(c, err)
	}

	var total int64
	for _, n := range st.ByStatus {
		total += n
	}
	return c.JSON(http.StatusOK, echo.Map{
		"listings":      total,
		"by_status":     st.ByStatus,
		"funded_escrow": st.FundedEscrow,
	})
}

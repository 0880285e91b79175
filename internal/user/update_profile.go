package user

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
	mware "github.com/sudo-init-do/skillmarket/internal/middleware"
)

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=50"`
}

// PATCH /profiles/me
func (h *Handler) UpdateProfile(c echo.Context) error {
	identity := mware.Identity(c)
	if identity == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or missing token"})
	}

	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return marketplace.RespondError(c, marketplace.NewValidation(err.Error()))
	}

	p, err := h.svc.UpdateDisplayName(c.Request().Context(), identity, req.DisplayName)
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

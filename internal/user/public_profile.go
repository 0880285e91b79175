package user

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(pub, api *echo.Group) {
	pub.GET("/profiles/:identity", h.GetPublicProfile)
	api.PATCH("/profiles/me", h.UpdateProfile)
}

// GET /profiles/:identity
func (h *Handler) GetPublicProfile(c echo.Context) error {
	identity := c.Param("identity")
	if identity == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing identity"})
	}

	p, err := h.svc.Get(c.Request().Context(), identity)
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

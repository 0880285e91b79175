package alerts

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	mware "github.com/sudo-init-do/skillmarket/internal/middleware"
)

const listLimit = 100

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Register(api *echo.Group) {
	api.GET("/notifications", h.ListNotifications)
	api.POST("/notifications/:id/read", h.MarkNotificationRead)
}

// ListNotifications returns current identity's notifications, newest first
func (h *Handler) ListNotifications(c echo.Context) error {
	identity := mware.Identity(c)
	if identity == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	items, err := h.store.List(c.Request().Context(), identity, listLimit)
	if err != nil {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load notifications"})
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": items})
}

// MarkNotificationRead marks specific notification as read
func (h *Handler) MarkNotificationRead(c echo.Context) error {
	identity := mware.Identity(c)
	if identity == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	nid := c.Param("id")
	if nid == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing notification id"})
	}

	err := h.store.MarkRead(c.Request().Context(), nid, identity, time.Now().UTC())
	switch {
	case errors.Is(err, ErrNotificationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case err != nil:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "ok"})
}

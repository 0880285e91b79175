package messaging

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
	mware "github.com/sudo-init-do/skillmarket/internal/middleware"
)

type Handler struct {
	svc *Service
	hub *Hub
}

func NewHandler(svc *Service, hub *Hub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

func (h *Handler) Register(api *echo.Group) {
	api.GET("/listings/:id/messages", h.ListMessages)
	api.POST("/listings/:id/messages", h.SendMessage)
	api.POST("/messages/:id/read", h.MarkRead)
	api.GET("/messages/unread", h.UnreadCount)
	if h.hub != nil {
		api.GET("/listings/:id/ws", h.ListingWS)
	}
}

type sendMessageRequest struct {
	To   string `json:"to" validate:"required"`
	Body string `json:"body" validate:"required,max=2000"`
}

// SendMessage - POST /listings/:id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	identity := mware.Identity(c)
	if identity == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return marketplace.RespondError(c, marketplace.NewValidation("invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return marketplace.RespondError(c, marketplace.NewValidation(err.Error()))
	}

	m, err := h.svc.Send(c.Request().Context(), c.Param("id"), identity, req.To, req.Body)
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// ListMessages - GET /listings/:id/messages?since=RFC3339&limit=N
func (h *Handler) ListMessages(c echo.Context) error {
	identity := mware.Identity(c)
	if identity == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var since time.Time
	if raw := c.QueryParam("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return marketplace.RespondError(c, marketplace.NewValidation("since must be RFC3339"))
		}
		since = t
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return marketplace.RespondError(c, marketplace.NewValidation("limit must be a positive integer"))
		}
		limit = n
	}

	page, err := h.svc.List(c.Request().Context(), c.Param("id"), identity, since, limit)
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// MarkRead - POST /messages/:id/read
func (h *Handler) MarkRead(c echo.Context) error {
	identity := mware.Identity(c)
	if identity == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	m, err := h.svc.MarkRead(c.Request().Context(), c.Param("id"), identity)
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UnreadCount(c echo.Context) error {
	identity := mware.Identity(c)
	if identity == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	n, err := h.svc.UnreadCount(c.Request().Context(), identity)
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"unread": n})
}

// ListingWS - websocket for realtime updates on a listing thread
func (h *Handler) ListingWS(c echo.Context) error {
	identity := mware.Identity(c)
	if identity == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	l, err := h.svc.listings.GetListing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return h.hub.serve(c.Response(), c.Request(), l, identity)
}

package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
	mware "github.com/sudo-init-do/skillmarket/internal/middleware"
	"github.com/sudo-init-do/skillmarket/internal/user"
	"github.com/sudo-init-do/skillmarket/internal/wallet"
)

type ProfileSource interface {
	GetOrCreate(ctx context.Context, identity string) (*user.Profile, error)
}

type Handler struct {
	issuer    *Issuer
	profiles  ProfileSource
	devTokens bool
}

func NewHandler(issuer *Issuer, profiles ProfileSource, devTokens bool) *Handler {
	return &Handler{issuer: issuer, profiles: profiles, devTokens: devTokens}
}

func (h *Handler) Register(pub, api *echo.Group) {
	if h.devTokens {
		pub.POST("/auth/token", h.IssueToken)
	}
	api.GET("/auth/me", h.Me)
}

type IssueTokenRequest struct {
	Identity string `json:"identity" validate:"required"`
}

// IssueToken mints a token for any wallet without a signature check.
// Only mounted when dev tokens are enabled.
func (h *Handler) IssueToken(c echo.Context) error {
	req := new(IssueTokenRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	tok, err := h.issuer.Issue(req.Identity)
	if errors.Is(err, wallet.ErrInvalidAddress) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid wallet address"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	return c.JSON(http.StatusOK, tok)
}

// Me returns the authenticated identity, its role and profile.
func (h *Handler) Me(c echo.Context) error {
	identity := mware.Identity(c)
	if identity == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	p, err := h.profiles.GetOrCreate(c.Request().Context(), identity)
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"identity": identity,
		"role":     mware.Role(c),
		"profile":  p,
	})
}

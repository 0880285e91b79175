package admin

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

// Marketplace is the slice of the marketplace service admin routes need.
type Marketplace interface {
	Stats(ctx context.Context) (marketplace.Stats, error)
	QueryListings(ctx context.Context, f marketplace.Filter) ([]*marketplace.Listing, error)
	GetListing(ctx context.Context, id string) (*marketplace.Listing, error)
	RecomputeStats(ctx context.Context, identity string) (marketplace.ParticipantStats, error)
}

type Handler struct {
	market Marketplace
}

func NewHandler(market Marketplace) *Handler {
	return &Handler{market: market}
}

// Register mounts admin routes on g, which must already carry the admin guard.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/stats", h.Stats)
	g.GET("/listings", h.ListListings)
	g.GET("/listings/:id", h.GetListing)
	g.POST("/profiles/:identity/recompute", h.RecomputeProfile)
}

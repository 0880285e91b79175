package marketplace

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	mware "github.com/sudo-init-do/skillmarket/internal/middleware"
)

// RespondError writes err using the marketplace error taxonomy.
func RespondError(c echo.Context, err error) error {
	var me *Error
	if !errors.As(err, &me) {
		me = NewUnavailable("internal error", err)
	}
	if me.Kind == KindUnavailable {
		c.Logger().Error(err)
	}
	return c.JSON(me.StatusCode(), echo.Map{
		"error":     me.Message,
		"code":      me.Code,
		"retryable": me.Retryable,
	})
}

func unauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return NewValidation("invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return NewValidation(err.Error())
	}
	return nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts public read routes on pub and identity-bound routes on api.
func (h *Handler) Register(pub, api *echo.Group) {
	pub.GET("/listings", h.QueryListings)
	pub.GET("/listings/:id", h.GetListing)

	api.POST("/listings", h.CreateListing)
	api.PATCH("/listings/:id", h.UpdateListing)
	api.DELETE("/listings/:id", h.DeleteListing)
	api.POST("/listings/:id/cancel", h.CancelListing)
	api.POST("/listings/:id/hire", h.Hire)
	api.POST("/listings/:id/bids", h.SubmitBid)
	api.PATCH("/listings/:id/bids/:bidId", h.EditBid)
	api.DELETE("/listings/:id/bids/:bidId", h.WithdrawBid)
	api.POST("/listings/:id/bids/:bidId/accept", h.AcceptBid)
	api.POST("/listings/:id/confirm", h.ConfirmCompletion)
	api.POST("/listings/:id/ratings", h.SubmitRating)
	api.POST("/listings/:id/votes", h.Vote)
}

type locationRequest struct {
	Lat     float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng     float64 `json:"lng" validate:"gte=-180,lte=180"`
	Address string  `json:"address" validate:"max=300"`
}

func (r *locationRequest) toLocation() *Location {
	if r == nil {
		return nil
	}
	return &Location{Lat: r.Lat, Lng: r.Lng, Address: r.Address}
}

type createListingRequest struct {
	Title       string           `json:"title" validate:"required,max=120"`
	Description string           `json:"description" validate:"required,max=5000"`
	Kind        string           `json:"kind" validate:"required"`
	Category    string           `json:"category" validate:"required"`
	Amount      decimal.Decimal  `json:"amount"`
	Location    *locationRequest `json:"location"`
}

// CreateListing - owner advertises an offer or a request
func (h *Handler) CreateListing(c echo.Context) error {
	owner := mware.Identity(c)
	if owner == "" {
		return unauthenticated(c)
	}

	var req createListingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return RespondError(c, err)
	}
	kind, ok := ParseKind(req.Kind)
	if !ok {
		return RespondError(c, NewValidation("kind must be offer or request"))
	}

	l, err := h.svc.CreateListing(c.Request().Context(), owner, ListingParams{
		Title:       req.Title,
		Description: req.Description,
		Kind:        kind,
		Category:    Category(req.Category),
		Amount:      req.Amount,
		Location:    req.Location.toLocation(),
	})
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetListing(c echo.Context) error {
	l, err := h.svc.GetListing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

// QueryListings - filters: owner, counterpart, participant, status, kind, category, q, sort, order, limit
func (h *Handler) QueryListings(c echo.Context) error {
	f := Filter{
		Owner:       c.QueryParam("owner"),
		Counterpart: c.QueryParam("counterpart"),
		Participant: c.QueryParam("participant"),
		Status:      Status(c.QueryParam("status")),
		Category:    Category(c.QueryParam("category")),
		Text:        c.QueryParam("q"),
		SortBy:      SortField(c.QueryParam("sort")),
		Ascending:   c.QueryParam("order") == "asc",
	}
	if k := c.QueryParam("kind"); k != "" {
		kind, ok := ParseKind(k)
		if !ok {
			return RespondError(c, NewValidation("kind must be offer or request"))
		}
		f.Kind = kind
	}
	if lim := c.QueryParam("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil || n < 0 {
			return RespondError(c, NewValidation("limit must be a non-negative integer"))
		}
		f.Limit = n
	}

	listings, err := h.svc.QueryListings(c.Request().Context(), f)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": listings, "count": len(listings)})
}

type updateListingRequest struct {
	Title       *string          `json:"title" validate:"omitempty,max=120"`
	Description *string          `json:"description" validate:"omitempty,max=5000"`
	Category    *string          `json:"category"`
	Amount      *decimal.Decimal `json:"amount"`
	Location    *locationRequest `json:"location"`
}

func (h *Handler) UpdateListing(c echo.Context) error {
	actor := mware.Identity(c)
	if actor == "" {
		return unauthenticated(c)
	}

	var req updateListingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return RespondError(c, err)
	}
	patch := ListingPatch{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		Location:    req.Location.toLocation(),
	}
	if req.Category != nil {
		cat := Category(*req.Category)
		patch.Category = &cat
	}

	l, err := h.svc.UpdateListing(c.Request().Context(), c.Param("id"), actor, patch)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) DeleteListing(c echo.Context) error {
	actor := mware.Identity(c)
	if actor == "" {
		return unauthenticated(c)
	}
	if err := h.svc.DeleteListing(c.Request().Context(), c.Param("id"), actor); err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "listing deleted"})
}

func (h *Handler) CancelListing(c echo.Context) error {
	actor := mware.Identity(c)
	if actor == "" {
		return unauthenticated(c)
	}
	l, err := h.svc.CancelListing(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

type hireRequest struct {
	Counterpart string `json:"counterpart" validate:"max=128"`
	TxRef       string `json:"tx_ref" validate:"max=256"`
}

// Hire - fund escrow and move the listing to in_progress (direct hire or accepted bid)
func (h *Handler) Hire(c echo.Context) error {
	actor := mware.Identity(c)
	if actor == "" {
		return unauthenticated(c)
	}

	var req hireRequest
	if err := bindAndValidate(c, &req); err != nil {
		return RespondError(c, err)
	}
	l, err := h.svc.FundAndHire(c.Request().Context(), c.Param("id"), actor, req.Counterpart, req.TxRef)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

type bidRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

func (h *Handler) SubmitBid(c echo.Context) error {
	bidder := mware.Identity(c)
	if bidder == "" {
		return unauthenticated(c)
	}

	var req bidRequest
	if err := bindAndValidate(c, &req); err != nil {
		return RespondError(c, err)
	}
	l, bid, err := h.svc.SubmitBid(c.Request().Context(), c.Param("id"), bidder, req.Message)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"bid": bid, "listing": l})
}

func (h *Handler) EditBid(c echo.Context) error {
	actor := mware.Identity(c)
	if actor == "" {
		return unauthenticated(c)
	}

	var req bidRequest
	if err := bindAndValidate(c, &req); err != nil {
		return RespondError(c, err)
	}
	l, err := h.svc.EditBid(c.Request().Context(), c.Param("id"), c.Param("bidId"), actor, req.Message)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) WithdrawBid(c echo.Context) error {
	actor := mware.Identity(c)
	if actor == "" {
		return unauthenticated(c)
	}
	l, err := h.svc.WithdrawBid(c.Request().Context(), c.Param("id"), c.Param("bidId"), actor)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

type acceptBidRequest struct {
	TxRef string `json:"tx_ref" validate:"max=256"`
}

func (h *Handler) AcceptBid(c echo.Context) error {
	actor := mware.Identity(c)
	if actor == "" {
		return unauthenticated(c)
	}

	var req acceptBidRequest
	if err := bindAndValidate(c, &req); err != nil {
		return RespondError(c, err)
	}
	l, err := h.svc.AcceptBid(c.Request().Context(), c.Param("id"), c.Param("bidId"), actor, req.TxRef)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

// ConfirmCompletion - 200 with completed=true once both parties confirmed, 202 while waiting
func (h *Handler) ConfirmCompletion(c echo.Context) error {
	actor := mware.Identity(c)
	if actor == "" {
		return unauthenticated(c)
	}
	res, err := h.svc.ConfirmCompletion(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return RespondError(c, err)
	}
	if !res.Completed {
		return c.JSON(http.StatusAccepted, res)
	}
	return c.JSON(http.StatusOK, res)
}

type ratingRequest struct {
	Score  int    `json:"score"`
	Review string `json:"review"`
}

func (h *Handler) SubmitRating(c echo.Context) error {
	rater := mware.Identity(c)
	if rater == "" {
		return unauthenticated(c)
	}

	var req ratingRequest
	if err := c.Bind(&req); err != nil {
		return RespondError(c, NewValidation("invalid request body"))
	}
	l, err := h.svc.SubmitRating(c.Request().Context(), c.Param("id"), rater, req.Score, req.Review)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusCreated, l)
}

type voteRequest struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

func (h *Handler) Vote(c echo.Context) error {
	voter := mware.Identity(c)
	if voter == "" {
		return unauthenticated(c)
	}

	var req voteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return RespondError(c, err)
	}
	l, err := h.svc.Vote(c.Request().Context(), c.Param("id"), voter, VoteDirection(req.Direction))
	if err != nil {
		return RespondError(c, err)
	}
	d, _ := l.VoteOf(voter)
	return c.JSON(http.StatusOK, echo.Map{"listing": l, "score": l.Score(), "user_vote": d})
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/showtix/booking/internal/cache"
	"github.com/showtix/booking/internal/catalog"
	"github.com/showtix/booking/internal/inventory"
	"github.com/showtix/booking/internal/model"
	"github.com/showtix/booking/internal/pricing"
	"github.com/showtix/booking/internal/reservation"
)

// ShowtimeHandler ingests showtime definitions from the catalog source and
// serves seat-map snapshots.  Seat maps are display data: they may lag the
// inventory briefly, which is why reads go through the Redis snapshot cache
// while every mutation invalidates it.
type ShowtimeHandler struct {
	Catalog   *catalog.Store
	Inventory *inventory.Inventory
	Prices    *pricing.Engine
	Manager   *reservation.Manager
	Snapshots *cache.SeatMap // may be nil when Redis is unavailable
}

// NewShowtimeHandler constructs the handler.  Snapshots may be nil; the
// other dependencies must not be.
func NewShowtimeHandler(cat *catalog.Store, inv *inventory.Inventory, prices *pricing.Engine, mgr *reservation.Manager, snaps *cache.SeatMap) *ShowtimeHandler {
	if cat == nil || inv == nil || prices == nil || mgr == nil {
		panic("nil dependency passed to NewShowtimeHandler")
	}
	return &ShowtimeHandler{Catalog: cat, Inventory: inv, Prices: prices, Manager: mgr, Snapshots: snaps}
}

type rowRequest struct {
	Label  string   `json:"label" validate:"required"`
	Seats  uint32   `json:"seats" validate:"required,min=1"`
	Booked []uint32 `json:"booked"`
}

type sectionRequest struct {
	Name       string       `json:"name" validate:"required"`
	PriceUnits int64        `json:"price_units" validate:"min=0"`
	Rows       []rowRequest `json:"rows" validate:"required,min=1,dive"`
}

type createShowtimeRequest struct {
	ID         string           `json:"id" validate:"required"`
	MovieID    string           `json:"movie_id" validate:"required"`
	TheaterID  string           `json:"theater_id" validate:"required"`
	Auditorium string           `json:"auditorium"`
	StartsAt   time.Time        `json:"starts_at" validate:"required"`
	Sections   []sectionRequest `json:"sections" validate:"required,min=1,dive"`
}

// Create handles POST /v1/showtimes.  The catalog source delivers a fully
// specified showtime; this service stores the definition and opens the seat
// inventory for holds.  A duplicate showtime ID returns 409.
func (h *ShowtimeHandler) Create(c echo.Context) error {
	var body createShowtimeRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return err
	}

	st := &model.Showtime{
		ID:         body.ID,
		MovieID:    body.MovieID,
		TheaterID:  body.TheaterID,
		Auditorium: body.Auditorium,
		StartsAt:   body.StartsAt.UTC(),
		Sections:   make([]model.Section, 0, len(body.Sections)),
	}
	for _, sec := range body.Sections {
		rows := make([]model.Row, 0, len(sec.Rows))
		for _, r := range sec.Rows {
			rows = append(rows, model.Row{Label: r.Label, Seats: r.Seats, Booked: r.Booked})
		}
		st.Sections = append(st.Sections, model.Section{Name: sec.Name, PriceUnits: sec.PriceUnits, Rows: rows})
	}

	ctx := c.Request().Context()
	if err := h.Catalog.Save(ctx, st); err != nil {
		if errors.Is(err, catalog.ErrExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "showtime already exists"})
		}
		c.Logger().Errorf("save showtime %s: %v", st.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if err := h.Manager.RegisterShowtime(st, nil); err != nil {
		if errors.Is(err, inventory.ErrShowtimeExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "showtime already exists"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": st.ID, "status": "scheduled"})
}

type seatView struct {
	ID            model.SeatID     `json:"id"`
	Section       string           `json:"section"`
	Status        model.SeatStatus `json:"status"`
	PriceUnits    int64            `json:"price_units"`
	HoldExpiresAt *time.Time       `json:"hold_expires_at,omitempty"`
}

type seatMapResponse struct {
	ShowtimeID string     `json:"showtime_id"`
	Seats      []seatView `json:"seats"`
}

// Seats handles GET /v1/showtimes/:id/seats.  The snapshot is cached in
// Redis per showtime; a cache hit is served verbatim, a miss rebuilds the
// snapshot from the inventory.  Hold ownership is never exposed here.
func (h *ShowtimeHandler) Seats(c echo.Context) error {
	showtimeID := c.Param("id")
	ctx := c.Request().Context()

	if payload, ok := h.Snapshots.Get(ctx, showtimeID); ok {
		return c.JSONBlob(http.StatusOK, payload)
	}

	states, err := h.Inventory.SeatMap(showtimeID)
	if err != nil {
		if errors.Is(err, inventory.ErrUnknownShowtime) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "showtime not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read seat map"})
	}

	resp := seatMapResponse{ShowtimeID: showtimeID, Seats: make([]seatView, 0, len(states))}
	for _, s := range states {
		price, err := h.Prices.UnitPrice(showtimeID, s.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to price seat map"})
		}
		view := seatView{ID: s.ID, Section: s.Section, Status: s.Status, PriceUnits: price}
		if s.Status == model.SeatHeld {
			view.HoldExpiresAt = s.HoldExpiresAt
		}
		resp.Seats = append(resp.Seats, view)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to encode seat map"})
	}
	h.Snapshots.Set(ctx, showtimeID, payload)
	return c.JSONBlob(http.StatusOK, payload)
}

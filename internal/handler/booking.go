package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/showtix/booking/internal/inventory"
	"github.com/showtix/booking/internal/ledger"
	"github.com/showtix/booking/internal/model"
	"github.com/showtix/booking/internal/pricing"
	"github.com/showtix/booking/internal/reservation"
)

// BookingHandler exposes the hold → confirm/cancel flow and the booking
// queries.  All routes require an authenticated user; the JWT middleware
// supplies the subject via the context.
type BookingHandler struct {
	Manager *reservation.Manager
	Ledger  ledger.Store
}

// NewBookingHandler constructs the handler.  Both dependencies must be
// non-nil.
func NewBookingHandler(mgr *reservation.Manager, led ledger.Store) *BookingHandler {
	if mgr == nil || led == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Manager: mgr, Ledger: led}
}

type holdRequest struct {
	SeatIDs []string `json:"seat_ids" validate:"required,min=1,dive,required"`
}

type reservationResponse struct {
	ReservationID string         `json:"reservation_id"`
	ShowtimeID    string         `json:"showtime_id"`
	SeatIDs       []model.SeatID `json:"seat_ids"`
	TotalUnits    int64          `json:"total_units"`
	Status        string         `json:"status"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

// Hold handles POST /v1/showtimes/:id/holds.  The hold is all-or-nothing:
// if any requested seat is unavailable, nothing is held and the response
// names exactly the seats that were contended.
func (h *BookingHandler) Hold(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showtimeID := c.Param("id")

	var body holdRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return err
	}
	seatIDs := make([]model.SeatID, 0, len(body.SeatIDs))
	for _, s := range body.SeatIDs {
		seatIDs = append(seatIDs, model.SeatID(s))
	}

	res, err := h.Manager.CreateHold(c.Request().Context(), showtimeID, userID, seatIDs)
	if err != nil {
		var conflict *inventory.ConflictError
		var unknownSeat *pricing.UnknownSeatError
		var unknownSeats *inventory.UnknownSeatError
		switch {
		case errors.As(err, &conflict):
			return c.JSON(http.StatusConflict, echo.Map{
				"error":          "seats_unavailable",
				"message":        "some seats are already held or booked",
				"conflict_seats": conflict.Seats,
			})
		case errors.As(err, &unknownSeat):
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error":         "unknown_seats",
				"unknown_seats": []model.SeatID{unknownSeat.Seat},
			})
		case errors.As(err, &unknownSeats):
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error":         "unknown_seats",
				"unknown_seats": unknownSeats.Seats,
			})
		case errors.Is(err, reservation.ErrInvalidShowtime):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "showtime not found"})
		case errors.Is(err, reservation.ErrEmptySeatSet), errors.Is(err, reservation.ErrDuplicateSeats):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		c.Logger().Errorf("create hold on %s: %v", showtimeID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create hold"})
	}

	return c.JSON(http.StatusCreated, reservationResponse{
		ReservationID: res.ID,
		ShowtimeID:    res.ShowtimeID,
		SeatIDs:       res.SeatIDs,
		TotalUnits:    res.TotalUnits,
		Status:        string(res.Status),
		ExpiresAt:     res.ExpiresAt,
	})
}

type confirmRequest struct {
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
	PaymentRef     string `json:"payment_ref" validate:"required"`
}

type bookingResponse struct {
	BookingID     string         `json:"booking_id"`
	ReservationID string         `json:"reservation_id"`
	ShowtimeID    string         `json:"showtime_id"`
	SeatIDs       []model.SeatID `json:"seat_ids"`
	TotalUnits    int64          `json:"total_units"`
	Reference     string         `json:"reference"`
	ConfirmedAt   time.Time      `json:"confirmed_at"`
}

// Confirm handles POST /v1/reservations/:id/confirm.  Confirms are
// idempotent on the idempotency key: a retried confirm returns the booking
// written by the first attempt and charges payment only once.
func (h *BookingHandler) Confirm(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	reservationID := c.Param("id")

	var body confirmRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return err
	}

	booking, err := h.Manager.Confirm(c.Request().Context(), reservationID, userID, body.IdempotencyKey, body.PaymentRef)
	if err != nil {
		switch {
		case errors.Is(err, reservation.ErrUnknownReservation):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		case errors.Is(err, reservation.ErrNotOwner):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "reservation belongs to a different user"})
		case errors.Is(err, reservation.ErrReservationExpired):
			return c.JSON(http.StatusGone, echo.Map{"error": "hold expired; create a new hold"})
		case errors.Is(err, reservation.ErrReservationCancelled):
			return c.JSON(http.StatusConflict, echo.Map{"error": "reservation was cancelled"})
		case errors.Is(err, reservation.ErrAlreadyConfirmed):
			return c.JSON(http.StatusConflict, echo.Map{"error": "already confirmed with a different idempotency key"})
		case errors.Is(err, reservation.ErrPaymentFailed):
			return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "payment failed", "detail": err.Error()})
		case errors.Is(err, reservation.ErrStorageFailure):
			// Seats are booked and payment captured; only the durable
			// record is missing.  The client must retry with the same key.
			return c.JSON(http.StatusInternalServerError, echo.Map{
				"error":   "booking_record_pending",
				"message": "payment captured but booking record not yet durable; retry with the same idempotency key",
			})
		}
		c.Logger().Errorf("confirm %s: %v", reservationID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to confirm reservation"})
	}

	return c.JSON(http.StatusOK, bookingResponse{
		BookingID:     booking.ID,
		ReservationID: booking.ReservationID,
		ShowtimeID:    booking.ShowtimeID,
		SeatIDs:       booking.SeatIDs,
		TotalUnits:    booking.TotalUnits,
		Reference:     booking.Reference,
		ConfirmedAt:   booking.ConfirmedAt,
	})
}

// Cancel handles DELETE /v1/reservations/:id.  Cancelling an already
// cancelled reservation succeeds; cancelling a confirmed one is refused.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	reservationID := c.Param("id")

	if err := h.Manager.Cancel(c.Request().Context(), reservationID, userID); err != nil {
		switch {
		case errors.Is(err, reservation.ErrUnknownReservation):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		case errors.Is(err, reservation.ErrNotOwner):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "reservation belongs to a different user"})
		case errors.Is(err, reservation.ErrAlreadyConfirmed):
			return c.JSON(http.StatusConflict, echo.Map{"error": "reservation already confirmed"})
		case errors.Is(err, reservation.ErrReservationExpired):
			return c.JSON(http.StatusGone, echo.Map{"error": "hold already expired"})
		}
		c.Logger().Errorf("cancel %s: %v", reservationID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel reservation"})
	}
	return c.NoContent(http.StatusNoContent)
}

// GetReservation handles GET /v1/reservations/:id and returns the caller's
// reservation including its current status.
func (h *BookingHandler) GetReservation(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := h.Manager.Reservation(c.Param("id"), userID)
	if err != nil {
		switch {
		case errors.Is(err, reservation.ErrUnknownReservation):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		case errors.Is(err, reservation.ErrNotOwner):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "reservation belongs to a different user"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load reservation"})
	}
	return c.JSON(http.StatusOK, reservationResponse{
		ReservationID: res.ID,
		ShowtimeID:    res.ShowtimeID,
		SeatIDs:       res.SeatIDs,
		TotalUnits:    res.TotalUnits,
		Status:        string(res.Status),
		ExpiresAt:     res.ExpiresAt,
	})
}

// ListMyBookings handles GET /v1/my-bookings and returns the caller's
// confirmed bookings, newest first.
func (h *BookingHandler) ListMyBookings(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookings, err := h.Ledger.ListByUser(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Errorf("list bookings for %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, bookingResponse{
			BookingID:     b.ID,
			ReservationID: b.ReservationID,
			ShowtimeID:    b.ShowtimeID,
			SeatIDs:       b.SeatIDs,
			TotalUnits:    b.TotalUnits,
			Reference:     b.Reference,
			ConfirmedAt:   b.ConfirmedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// GetBooking handles GET /v1/bookings/:id.  Bookings are visible only to
// the user who made them.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.Ledger.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		c.Logger().Errorf("get booking %s: %v", c.Param("id"), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if b.UserID != userID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	}
	return c.JSON(http.StatusOK, bookingResponse{
		BookingID:     b.ID,
		ReservationID: b.ReservationID,
		ShowtimeID:    b.ShowtimeID,
		SeatIDs:       b.SeatIDs,
		TotalUnits:    b.TotalUnits,
		Reference:     b.Reference,
		ConfirmedAt:   b.ConfirmedAt,
	})
}

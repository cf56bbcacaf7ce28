package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/showtix/booking/internal/handler"
	"github.com/showtix/booking/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: the health check and the public seat-map
// snapshot.  Seat maps carry no hold ownership, so guests can browse them
// while picking seats.
func RegisterRoutes(e *echo.Echo, sh *handler.ShowtimeHandler) {
	e.GET("/healthz", handler.Health)
	e.GET("/v1/showtimes/:id/seats", sh.Seats)
}

// RegisterBooking registers the authenticated booking surface.  Every route
// in the group runs the JWT middleware; the mutation routes additionally
// sit behind the rate limiter so one client cannot hammer the hold path.
func RegisterBooking(e *echo.Echo, sh *handler.ShowtimeHandler, bh *handler.BookingHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))

	// Showtime ingest from the catalog source.
	g.POST("/showtimes", sh.Create, limiter)

	// Hold → confirm/cancel lifecycle.
	g.POST("/showtimes/:id/holds", bh.Hold, limiter)
	g.GET("/reservations/:id", bh.GetReservation)
	g.POST("/reservations/:id/confirm", bh.Confirm, limiter)
	g.DELETE("/reservations/:id", bh.Cancel, limiter)

	// Booking queries backed by the ledger.
	g.GET("/my-bookings", bh.ListMyBookings)
	g.GET("/bookings/:id", bh.GetBooking)
}

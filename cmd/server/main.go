package main // Entry point package

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/showtix/booking/internal/cache"
	"github.com/showtix/booking/internal/catalog"
	"github.com/showtix/booking/internal/config"
	"github.com/showtix/booking/internal/database"
	"github.com/showtix/booking/internal/handler"
	"github.com/showtix/booking/internal/inventory"
	"github.com/showtix/booking/internal/ledger"
	"github.com/showtix/booking/internal/middleware"
	"github.com/showtix/booking/internal/payment"
	"github.com/showtix/booking/internal/pricing"
	"github.com/showtix/booking/internal/queue"
	"github.com/showtix/booking/internal/reservation"
	"github.com/showtix/booking/internal/router"
)

func main() {
	_ = godotenv.Load() // load .env in development; absent in production
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and seat-map caching disabled")
	}
	var snapshots *cache.SeatMap
	if snapCfg := config.LoadSnapshotConfig(); snapCfg.Enabled && rdb != nil {
		snapshots = cache.NewSeatMap(rdb, snapCfg.TTL)
	}

	bookings := ledger.NewMySQLStore(db)
	showtimes := catalog.NewStore(db)

	var payments payment.Provider = payment.Sandbox{}
	if cfg.PaymentURL != "" {
		payments = payment.NewHTTPProvider(cfg.PaymentURL, cfg.PaymentTimeout)
	} else {
		log.Printf("no payment gateway configured; using sandbox provider")
	}

	var events reservation.EventPublisher
	if cfg.RabbitURL != "" {
		events = queue.NewPublisher(cfg.RabbitURL)
		go func() {
			if err := queue.StartBookingConsumer(cfg.RabbitURL); err != nil {
				log.Printf("booking consumer stopped: %v", err)
			}
		}()
	}

	inv := inventory.New()
	prices := pricing.NewEngine()
	mgr := reservation.NewManager(inv, prices, bookings, payments, events, snapshots, reservation.Config{
		HoldTTL:        cfg.HoldTTL,
		ReaperInterval: cfg.ReaperInterval,
		PaymentTimeout: cfg.PaymentTimeout,
		AppendRetries:  cfg.LedgerRetries,
	})

	// Rebuild inventory and pricing from the stored catalog, replaying the
	// ledger so seats sold before the restart stay BOOKED.
	stored, err := showtimes.All(ctx)
	if err != nil {
		log.Fatalf("load showtimes: %v", err)
	}
	for i := range stored {
		st := &stored[i]
		sold, err := bookings.SeatsByShowtime(ctx, st.ID)
		if err != nil {
			log.Fatalf("load booked seats for %s: %v", st.ID, err)
		}
		if err := mgr.RegisterShowtime(st, sold); err != nil {
			log.Fatalf("register showtime %s: %v", st.ID, err)
		}
	}
	log.Printf("rehydrated %d showtime(s)", len(stored))

	go mgr.RunReaper(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	sh := handler.NewShowtimeHandler(showtimes, inv, prices, mgr, snapshots)
	bh := handler.NewBookingHandler(mgr, bookings)
	router.RegisterRoutes(e, sh)
	router.RegisterBooking(e, sh, bh, cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()
	if err := e.Start(addr); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

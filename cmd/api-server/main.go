package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-waitlist/internal/api"
	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/audit"
	"github.com/clinicdesk/appointment-waitlist/internal/booking"
	"github.com/clinicdesk/appointment-waitlist/internal/config"
	"github.com/clinicdesk/appointment-waitlist/internal/db"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
	"github.com/clinicdesk/appointment-waitlist/internal/identity"
	"github.com/clinicdesk/appointment-waitlist/internal/payment"
	redisclient "github.com/clinicdesk/appointment-waitlist/internal/redis"
	"github.com/clinicdesk/appointment-waitlist/internal/waitlist"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalLog := zerolog.New(os.Stderr)
		fatalLog.Fatal().Err(err).Msg("config load error")
	}
	log := cfg.Logger()

	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Bool("waitlist_enabled", cfg.Features.WaitlistEnabled).
		Bool("slots_enabled", cfg.Features.SlotsEnabled).
		Int("slot_capacity", cfg.Features.SlotCapacity).
		Bool("implicit_fallback_creation", cfg.Features.AllowImplicitFallbackCreation).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.Postgres("api-server"))
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	if err := db.Migrate(rootCtx, pgPool); err != nil {
		log.Fatal().Err(err).Msg("schema migration error")
	}
	log.Info().Msg("connected to Postgres, schema up to date")

	// Redis
	var (
		locker      redisclient.Locker
		redisHealth api.RedisPinger
	)
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	switch {
	case err == nil:
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL, cfg.LockWait)
		redisHealth = rdb
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	case cfg.IsDev():
		// single instance: the Postgres advisory lock still serializes writers
		locker = redisclient.NewLocalLocker()
		log.Warn().Err(err).Msg("redis unavailable, using in-process doctor locks")
	default:
		log.Fatal().Err(err).Msg("redis connection error")
	}

	payments, err := payment.NewRegistry(cfg.PaymentMethods)
	if err != nil {
		log.Fatal().Err(err).Msg("payment method configuration error")
	}

	tx := db.NewPgTxRunner(pgPool)
	events := audit.NewRecorder(audit.NewPgSink(pgPool), log)

	directoryRepo := directory.NewPgRepository(pgPool)
	resolver := directory.NewResolver(directoryRepo, directory.FallbackPolicy{
		AllowImplicitCreation: cfg.Features.AllowImplicitFallbackCreation,
	}, log.With().Str("component", "directory").Logger())

	appointmentRepo := appointment.NewPgRepository(pgPool)
	appointments := appointment.NewService(appointmentRepo, resolver, tx, payments, events,
		log.With().Str("component", "appointment").Logger())
	slots := appointment.NewSlotCalculator(appointmentRepo, directoryRepo, cfg.Features.SlotsEnabled, cfg.Features.SlotCapacity)

	wl := waitlist.NewService(waitlist.Deps{
		Repo:         waitlist.NewPgRepository(pgPool),
		Appointments: appointmentRepo,
		Resolver:     resolver,
		Tx:           tx,
		Locker:       locker,
		Events:       events,
		Enabled:      cfg.Features.WaitlistEnabled,
		Log:          log.With().Str("component", "waitlist").Logger(),
	})

	desk := booking.NewDesk(appointments, slots, wl, log.With().Str("component", "booking").Logger())

	router := api.NewRouter(api.RouterConfig{
		Appointments: appointments,
		Slots:        slots,
		Waitlist:     wl,
		Desk:         desk,
		Identity:     identity.NewResolver(cfg.DemoIdentity),
		Health:       api.NewHealthHandler(pgPool, redisHealth, cfg.Env, version),
		Log:          log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("api-server stopped")
}

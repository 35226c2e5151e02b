// Command promote-waitlist makes one promotion attempt for the oldest
// QUEUED waitlist entry of each doctor (or of PROMOTE_DOCTOR_ID only) and
// exits. Schedule it externally; it never loops.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/audit"
	"github.com/clinicdesk/appointment-waitlist/internal/config"
	"github.com/clinicdesk/appointment-waitlist/internal/db"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
	redisclient "github.com/clinicdesk/appointment-waitlist/internal/redis"
	"github.com/clinicdesk/appointment-waitlist/internal/waitlist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalLog := zerolog.New(os.Stderr)
		fatalLog.Fatal().Err(err).Msg("config load error")
	}
	log := cfg.Logger().With().Str("cmd", "promote-waitlist").Logger()

	if !cfg.Features.WaitlistEnabled {
		log.Info().Msg("waitlist disabled, nothing to do")
		return
	}

	var only *uuid.UUID
	if raw := os.Getenv("PROMOTE_DOCTOR_ID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Fatal().Err(err).Msg("PROMOTE_DOCTOR_ID must be a UUID")
		}
		only = &id
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.Postgres("promote-waitlist"))
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: 2,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()

	svc := waitlist.NewService(waitlist.Deps{
		Repo:         waitlist.NewPgRepository(pgPool),
		Appointments: appointment.NewPgRepository(pgPool),
		Resolver: directory.NewResolver(directory.NewPgRepository(pgPool), directory.FallbackPolicy{
			AllowImplicitCreation: cfg.Features.AllowImplicitFallbackCreation,
		}, log),
		Tx:      db.NewPgTxRunner(pgPool),
		Locker:  redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL, cfg.LockWait),
		Events:  audit.NewRecorder(audit.NewPgSink(pgPool), log),
		Enabled: true,
		Log:     log,
	})

	runCtx, cancel := context.WithTimeout(rootCtx, time.Minute)
	defer cancel()

	if !runOnce(runCtx, svc, only, log) {
		os.Exit(1)
	}
}

// runOnce reports false when any attempt failed for a reason other than a
// conflict or an empty queue.
func runOnce(ctx context.Context, svc *waitlist.Service, only *uuid.UUID, log zerolog.Logger) bool {
	doctors := []uuid.UUID{}
	if only != nil {
		doctors = append(doctors, *only)
	} else {
		ids, err := svc.DoctorsWithQueued(ctx)
		if err != nil {
			log.Error().Err(err).Msg("list doctors with queued entries")
			return false
		}
		doctors = ids
	}

	start := time.Now()
	var promoted, blocked, failed int
	for _, doctorID := range doctors {
		p, err := svc.PromoteNext(ctx, doctorID)
		switch {
		case err == nil:
			promoted++
			log.Info().
				Stringer("doctor_id", doctorID).
				Stringer("entry_id", p.Entry.ID).
				Stringer("appointment_id", p.Appointment.ID).
				Msg("promoted")
		case errors.Is(err, waitlist.ErrNothingQueued):
		case errors.Is(err, apperr.ErrSlotConflict), errors.Is(err, apperr.ErrInvalidState):
			blocked++
			log.Info().Stringer("doctor_id", doctorID).Err(err).Msg("oldest entry not promotable")
		default:
			failed++
			log.Error().Stringer("doctor_id", doctorID).Err(err).Msg("promotion failed")
		}
	}

	log.Info().
		Int("doctors", len(doctors)).
		Int("promoted", promoted).
		Int("blocked", blocked).
		Int("failed", failed).
		Dur("took", time.Since(start)).
		Msg("promotion run complete")

	return failed == 0
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/booking"
	"github.com/clinicdesk/appointment-waitlist/internal/identity"
	"github.com/clinicdesk/appointment-waitlist/internal/waitlist"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Slots        *appointment.SlotCalculator
	Waitlist     *waitlist.Service
	Desk         *booking.Desk
	Identity     *identity.Resolver
	Health       *HealthHandler
	Log          zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(RecoveryMiddleware(cfg.Log))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware(cfg.Identity))

		r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
		r.Get("/appointments", listMyAppointmentsHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Put("/appointments/{id}/status", updateAppointmentStatusHandler(cfg.Appointments))

		r.Post("/bookings", bookHandler(cfg.Desk))
		r.Get("/slots/{doctorId}", getSlotsHandler(cfg.Slots))

		r.Post("/waitlist", addToWaitlistHandler(cfg.Waitlist))
		r.Get("/waitlist", listMyWaitlistHandler(cfg.Waitlist))
		r.Delete("/waitlist/{id}", cancelWaitlistEntryHandler(cfg.Waitlist))

		r.Route("/admin", func(r chi.Router) {
			r.Get("/appointments", listAllAppointmentsHandler(cfg.Appointments))
			r.Put("/appointments/{id}/status", overrideAppointmentStatusHandler(cfg.Appointments))

			r.Get("/waitlist", listActiveWaitlistHandler(cfg.Waitlist))
			r.Get("/waitlist/all", listAllWaitlistHandler(cfg.Waitlist))
			r.Get("/waitlist/queue/{doctorId}", listDoctorQueueHandler(cfg.Waitlist))
			r.Post("/waitlist/queue/{doctorId}/promote-next", promoteNextHandler(cfg.Waitlist))
			r.Post("/waitlist/{id}/promote", promoteHandler(cfg.Waitlist))
			r.Put("/waitlist/{id}/status", updateWaitlistStatusHandler(cfg.Waitlist))
		})
	})

	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Slots        SlotPublisher
	Availability AvailabilityProvider
	Booking      Booker
	Sessions     SessionManager
	PgPool       PostgresPinger
	Redis        *redis.Client
	Env          string
	Version      string
	GridDayStart string
	GridDayEnd   string
	Logger       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(ActorMiddleware)

	// Health and metrics
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/appointment", func(r chi.Router) {
		r.Get("/get-timeslot-grid", slotGridHandler(cfg.GridDayStart, cfg.GridDayEnd))
		r.Get("/get-Available-timeslots", availableSlotsHandler(cfg.Availability))

		r.With(RequireRole("doctor")).
			Post("/createorupdate-timeslots", publishSlotsHandler(cfg.Slots))

		r.With(RequireRole("patient")).
			Post("/book-appointment", bookAppointmentHandler(cfg.Booking))
		r.With(RequireRole("patient")).
			Get("/my-appointments", myAppointmentsHandler(cfg.Sessions))
	})

	r.Route("/doctor/session", func(r chi.Router) {
		r.Use(RequireRole("doctor"))

		r.Get("/requests", sessionRequestsHandler(cfg.Sessions))
		r.Get("/today", sessionsTodayHandler(cfg.Sessions))
		r.Get("/upcoming", sessionsUpcomingHandler(cfg.Sessions))

		r.Post("/cancel", cancelSessionHandler(cfg.Sessions))
		r.Post("/complete", completeSessionHandler(cfg.Sessions))
		r.Post("/notes", sessionNotesHandler(cfg.Sessions))
		r.Post("/meet-link", sessionMeetLinkHandler(cfg.Sessions))
	})

	return r
}

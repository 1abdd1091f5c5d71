package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// RouterConfig collects the handlers and request guards of the API. Nil
// handlers leave their routes unregistered.
type RouterConfig struct {
	Timetable *TimetableHandler
	Bookings  *BookingHandler
	Templates *TemplateHandler
	Jobs      *JobHandler

	Logger *slog.Logger
	// RateLimit and RateBurst bound write requests per client address. A
	// zero RateLimit disables limiting.
	RateLimit float64
	RateBurst int
	// Cache serves repeated GETs and is flushed on successful writes. Nil
	// disables caching.
	Cache *ResponseCache
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger(logger))
	router.Use(middleware.Recoverer)
	if cfg.Cache != nil {
		router.Use(cfg.Cache.Middleware)
	}

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if cfg.Timetable != nil {
		router.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Get("/timetable", cfg.Timetable.Timetable)
			r.Get("/availability", cfg.Timetable.Availability)
		})
	}

	router.Group(func(r chi.Router) {
		r.Use(RequirePrincipal(logger))
		if cfg.RateLimit > 0 {
			burst := cfg.RateBurst
			if burst <= 0 {
				burst = 1
			}
			limiter := NewIPRateLimiter(rate.Limit(cfg.RateLimit), burst)
			r.Use(writesOnly(limiter.Middleware(logger)))
		}

		if cfg.Bookings != nil {
			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", cfg.Bookings.Create)
				r.Route("/{bookingID}", func(r chi.Router) {
					r.Put("/", cfg.Bookings.Update)
					r.Delete("/", cfg.Bookings.Delete)
					r.Post("/approve", cfg.Bookings.Approve)
					r.Post("/deny", cfg.Bookings.Deny)
					r.Post("/cancel", cfg.Bookings.Cancel)
					r.Post("/cancel-occurrence", cfg.Bookings.CancelOccurrence)
				})
			})
		}

		if cfg.Templates != nil {
			r.Route("/templates", func(r chi.Router) {
				r.Get("/", cfg.Templates.List)
				r.Post("/", cfg.Templates.Create)
				r.Route("/{templateID}", func(r chi.Router) {
					r.Put("/", cfg.Templates.Update)
					r.Post("/deactivate", cfg.Templates.Deactivate)
					r.Get("/exceptions", cfg.Templates.ListExceptions)
					r.Post("/exceptions", cfg.Templates.CreateException)
				})
			})
		}

		if cfg.Jobs != nil {
			r.Post("/jobs/materialize", cfg.Jobs.Materialize)
		}
	})

	return router
}

// writesOnly applies mw to every method except GET and HEAD.
func writesOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

// NewServer wraps the router in an http.Server with the configured timeouts.
func NewServer(addr string, handler http.Handler, timeout, idleTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       idleTimeout,
	}
}

package handlers

import (
	"net/http"

	"linguachat/config"
	"linguachat/metrics"
	"linguachat/services"
	"linguachat/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Deps struct {
	Config    *config.Config
	Auth      *services.AuthService
	Users     *services.UserService
	Messages  *services.MessageService
	Reactions *services.ReactionService
	Hub       *ws.Hub
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	// Limiter is optional; nil disables rate limiting.
	Limiter *RateLimiter
	Log     zerolog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.Config.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithSuccess(w, map[string]any{
			"status":      "ok",
			"connections": d.Hub.ConnectionCount(),
		})
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	authHandler := NewAuthHandler(d.Auth)
	ops := NewOperationHandler(d.Users, d.Messages, d.Reactions, d.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(d.Auth))
			if d.Limiter != nil {
				r.Use(d.Limiter.Middleware)
			}
			r.Method(http.MethodPost, "/operations", ops)
		})
	})
	r.Handle("/ws", NewSubscriptionHandler(d.Auth, d.Hub))

	return r
}

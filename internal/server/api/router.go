package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kamikazebr/ssh-api/internal/config"
)

// NewRouter wires the HTTP API around runner.
func NewRouter(cfg *config.Config, runner Runner, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(BodyLimit(cfg.MaxRequestBytes))

	r.Get("/healthz", Healthz)

	runHandler := NewRunHandler(runner, cfg.SSHDir)
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret, cfg.Keys()))
		r.Post("/run", runHandler.Run)
	})

	return r
}

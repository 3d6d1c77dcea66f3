package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bountydesk/internal/platform/health"
	"bountydesk/internal/platform/middleware"
)

// RouterDeps carries everything the router mounts. Health may be nil in
// handler tests.
type RouterDeps struct {
	Handler        *Handler
	AdminValidator middleware.AdminTokenValidator
	Health         *health.Handler
	Logger         *slog.Logger
}

// NewRouter assembles the full API surface with the standard middleware
// chain. Admin routes require a reviewer bearer token.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Recovery(deps.Logger))

	if deps.Health != nil {
		deps.Health.Register(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(deps.AdminValidator, deps.Logger))
		r.Get("/queue", deps.Handler.HandleQueue)
		r.Post("/decisions", deps.Handler.HandleDecision)
		r.Get("/principals/{id}/history", deps.Handler.HandleHistory)
	})

	r.Route("/kyb/{id}", func(r chi.Router) {
		r.Post("/documents", deps.Handler.HandleAttach)
		r.Post("/submit", deps.Handler.HandleSubmit)
	})

	r.Get("/principals/{id}/status", deps.Handler.HandleStatus)
	r.Post("/registrations", deps.Handler.HandleRegister)
	r.Post("/sessions", deps.Handler.HandleSession)

	return r
}

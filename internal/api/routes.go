package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router. hc may be nil, in which case the
// process-level health endpoints are not mounted.
func SetupRoutes(h *Handlers, hc *HealthChecker) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.pilarlabs.io", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/live", hc.HandleLiveness)
		r.Get("/health/ready", hc.HandleReadiness)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/operator/run", h.HandleRunOperator)
		r.Post("/followups/process", h.HandleProcessFollowups)

		r.Route("/workspaces/{id}", func(r chi.Router) {
			r.Get("/health", h.HandleWorkspaceHealth)
			r.Get("/activity", h.HandleWorkspaceActivity)
			r.Post("/followups/process", h.HandleProcessWorkspaceFollowups)
		})
	})

	return r
}

package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-tracker/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	identitiesHandler := handlers.NewIdentitiesHandler(s.store)
	clipsHandler := handlers.NewClipsHandler(s.resolver)
	statsHandler := handlers.NewStatsHandler(s.store)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Get("/identities/{id}", identitiesHandler.Get)
		r.Put("/identities/{id}/label", identitiesHandler.SetLabel)

		// Clips
		r.Post("/clips/resolve", clipsHandler.Resolve)
		r.Post("/clips/bind", clipsHandler.Bind)

		// Stats
		r.Get("/stats", statsHandler.Get)
	})
}

package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-align/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	alignHandler := handlers.NewAlignHandler(s.aligner, s.ledger)
	recoverHandler := handlers.NewRecoverHandler(s.aligner.Engine(), s.ledger)
	configHandler := handlers.NewConfigHandler(s.config, s.aligner.Engine())

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/config", configHandler.Get)

		r.Post("/align", alignHandler.Align)
		r.Post("/recover", recoverHandler.Recover)

		if s.ledger != nil {
			ledgerHandler := handlers.NewLedgerHandler(s.ledger)
			r.Get("/ledger", ledgerHandler.List)
			r.Get("/ledger/{id}", ledgerHandler.Get)
		}
	})
}

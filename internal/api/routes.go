package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/resolve", s.handleResolve)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Put("/", s.handleReplaceRules)
			r.Get("/{package}", s.handleGetRule)
		})

		r.Post("/sync", s.handleSync)

		r.Get("/events", s.handleEventStream)
		r.Post("/events/{kind}", s.handleEvent)

		r.Put("/views/{surface}", s.handleUpdateView)

		r.Get("/system/status", s.handleSystemStatus)
	})
}

// handleHealth returns the health status of the service
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleSystemStatus reports engine state, recent syncs and host usage
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"engine": s.engine.Status(),
	}
	if s.monitor != nil {
		resp["host"] = s.monitor.Stats()
	}
	if s.history != nil {
		recent, err := s.history.RecentSyncs(r.Context(), 10)
		if err != nil {
			s.logger.Warn("failed to read sync history", "error", err)
		} else {
			resp["recentSyncs"] = recent
		}
	}
	if s.hub != nil {
		resp["subscribers"] = s.hub.SubscriberCount()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Helper functions for JSON responses

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

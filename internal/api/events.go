package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"codeberg.org/d-buckner/notifyicon/internal/engine"
	"codeberg.org/d-buckner/notifyicon/internal/render"
	"github.com/go-chi/chi/v5"
)

const keepAliveInterval = 15 * time.Second

// EventRequest carries the optional details of a host trigger
type EventRequest struct {
	Package   string    `json:"package,omitempty"`
	Replacing bool      `json:"replacing,omitempty"`
	Now       time.Time `json:"now,omitempty"`
}

// handleEvent queues a host trigger on the engine
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "kind")
	kind, ok := engine.ParseEventKind(name)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown event %q", name))
		return
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev := engine.Event{Kind: kind, Package: req.Package, Replacing: req.Replacing, Now: req.Now}
	if (kind == engine.EventAppInstalled || kind == engine.EventAppRemoved) && ev.Package == "" {
		respondError(w, http.StatusBadRequest, "package is required")
		return
	}

	if err := s.engine.Submit(ev); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"queued": kind.String()})
}

// handleUpdateView replaces the visible items of a surface and schedules a refresh
func (s *Server) handleUpdateView(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "surface")
	surface, ok := render.ParseSurface(name)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown surface %q", name))
		return
	}

	var snap render.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.views.Set(surface, snap)
	if s.refresher != nil {
		s.refresher.Request(surface)
	}

	respondJSON(w, http.StatusAccepted, map[string]int{"items": len(snap.Items)})
}

// handleEventStream streams outbound signals via SSE
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	s.logger.Debug("SSE client connected", "subscribers", s.hub.SubscriberCount())

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("SSE client disconnected")
			return

		case sig, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(sig)
			if err != nil {
				s.logger.Error("failed to marshal signal for SSE", "kind", sig.Kind, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", sig.Kind, data)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

package httpapi

import (
	"errors"
	"net/http"

	"github.com/ent0n29/neutralize/internal/llm"
)

func (s *Server) handleMode(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.mode.Status())
}

func (s *Server) handleModeRefresh(w http.ResponseWriter, r *http.Request) {
	if s.mode == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "mode not configured")
		return
	}
	respondJSON(w, http.StatusOK, s.mode.Refresh(r.Context()))
}

func (s *Server) localStatuses() []llm.LocalStatus {
	out := make([]llm.LocalStatus, 0, len(s.local))
	for _, l := range s.local {
		out = append(out, l.LocalStatus())
	}
	return out
}

func (s *Server) handleLocalStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"local": s.localStatuses()})
}

func (s *Server) handleLocalClose(w http.ResponseWriter, r *http.Request) {
	var errs []error
	for _, l := range s.local {
		errs = append(errs, l.CloseLocal())
	}
	if err := errors.Join(errs...); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"local": s.localStatuses()})
}

func (s *Server) handleLocalReopen(w http.ResponseWriter, r *http.Request) {
	var errs []error
	for _, l := range s.local {
		errs = append(errs, l.ReopenLocal())
	}
	if err := errors.Join(errs...); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"local": s.localStatuses()})
}

func (s *Server) handleInterpreterStats(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.StageSnapshot())
}

package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ent0n29/neutralize/internal/history"
	"github.com/ent0n29/neutralize/internal/jobdesc"
	"github.com/ent0n29/neutralize/internal/languages"
	"github.com/ent0n29/neutralize/internal/translate"
)

// jobDescriptionRequest uses pointers so omitted knobs take the configured defaults.
type jobDescriptionRequest struct {
	Title       string   `json:"title"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

func (s *Server) handleJobDescription(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "job description generator not configured")
		return
	}
	var body jobDescriptionRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req := jobdesc.Request{
		Title:       body.Title,
		MaxTokens:   s.cfg.JobDescMaxTokens,
		Temperature: s.cfg.JobDescTemperature,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = jobdesc.DefaultMaxTokens
		req.Temperature = jobdesc.DefaultTemperature
	}
	if body.MaxTokens != nil {
		req.MaxTokens = *body.MaxTokens
	}
	if body.Temperature != nil {
		req.Temperature = *body.Temperature
	}

	desc, err := s.jobs.Describe(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.history.Record(r.Context(), history.KindJobDescription, desc.Title, desc.Text, desc.Backend)
	respondJSON(w, http.StatusOK, desc)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if s.translator == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "translator not configured")
		return
	}
	var req translate.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := s.translator.Translate(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.history.Record(r.Context(), history.KindTranslation, req.Text, res.Text, res.Backend)
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	p1, p2 := s.cfg.Participant1Language, s.cfg.Participant2Language
	if p1 == "" {
		p1 = languages.DefaultParticipant1
	}
	if p2 == "" {
		p2 = languages.DefaultParticipant2
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"languages": languages.All(),
		"defaults": map[string]string{
			"participant1": p1,
			"participant2": p2,
		},
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondJSON(w, http.StatusOK, map[string]any{"records": []history.Record{}})
		return
	}
	q := history.Query{Kind: history.Kind(strings.TrimSpace(r.URL.Query().Get("kind")))}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		q.Limit = n
	}
	records, err := s.history.Recent(r.Context(), q)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

package httpapi

import (
	"net/http"

	"github.com/ent0n29/neutralize/internal/history"
)

type detectBiasRequest struct {
	Text string `json:"text"`
}

type detectBiasResponse struct {
	NeutralText string `json:"neutral_text"`
}

type sentenceRequest struct {
	Sentence string `json:"sentence"`
}

type correctBiasResponse struct {
	CorrectedSentence string `json:"corrected_sentence"`
}

type biasScoreResponse struct {
	Score string `json:"score"`
}

func (s *Server) handleDetectBias(w http.ResponseWriter, r *http.Request) {
	if s.bias == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "bias analyzer not configured")
		return
	}
	var req detectBiasRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	label, err := s.bias.Detect(r.Context(), req.Text)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.history.Record(r.Context(), history.KindBiasDetect, req.Text, label, "")
	respondJSON(w, http.StatusOK, detectBiasResponse{NeutralText: label})
}

func (s *Server) handleCorrectBias(w http.ResponseWriter, r *http.Request) {
	if s.bias == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "bias analyzer not configured")
		return
	}
	var req sentenceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	corrected, err := s.bias.Correct(r.Context(), req.Sentence)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.history.Record(r.Context(), history.KindBiasCorrect, req.Sentence, corrected, "")
	respondJSON(w, http.StatusOK, correctBiasResponse{CorrectedSentence: corrected})
}

func (s *Server) handleBiasScore(w http.ResponseWriter, r *http.Request) {
	if s.bias == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "bias analyzer not configured")
		return
	}
	var req sentenceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	score, err := s.bias.Score(r.Context(), req.Sentence)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.history.Record(r.Context(), history.KindBiasScore, req.Sentence, score, "")
	respondJSON(w, http.StatusOK, biasScoreResponse{Score: score})
}

func (s *Server) handleAnalyzeBias(w http.ResponseWriter, r *http.Request) {
	if s.bias == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "bias analyzer not configured")
		return
	}
	var req sentenceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	analysis, err := s.bias.Analyze(r.Context(), req.Sentence)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.history.Record(r.Context(), history.KindBiasAnalysis, req.Sentence,
		analysis.Biased+" | "+analysis.Score+" | "+analysis.Corrected, analysis.Backend)
	respondJSON(w, http.StatusOK, analysis)
}

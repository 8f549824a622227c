package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ent0n29/neutralize/internal/audio"
	"github.com/ent0n29/neutralize/internal/languages"
	"github.com/ent0n29/neutralize/internal/speech"
)

// maxUploadBytes is about a minute of 16 kHz PCM16.
const maxUploadBytes = 2 << 20

type recognizeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// handleRecognize accepts a WAV file or raw PCM16LE (with ?sample_rate=) in the body.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	if s.recognizer == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", speech.MessageUnavailable)
		return
	}
	lang, err := languages.Lookup(firstNonEmpty(r.URL.Query().Get("language"), languages.DefaultParticipant1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_language", err.Error())
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
		return
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "audio body is required")
		return
	}

	u := speech.Utterance{PCM: body, SampleRate: audio.DefaultSampleRate}
	if audio.IsWAV(body) {
		pcm, rate, err := audio.DecodeWAV(body)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_audio", err.Error())
			return
		}
		u = speech.Utterance{PCM: pcm, SampleRate: rate}
	} else if raw := strings.TrimSpace(r.URL.Query().Get("sample_rate")); raw != "" {
		rate, err := strconv.Atoi(raw)
		if err != nil || rate <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_sample_rate", "sample_rate must be a positive integer")
			return
		}
		u.SampleRate = rate
	}

	text, err := s.recognizer.Recognize(r.Context(), u, lang.Locale)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, recognizeResponse{Text: text, Language: lang.Code})
	case r.Context().Err() != nil:
	case errors.Is(err, speech.ErrNotUnderstood):
		respondError(w, http.StatusUnprocessableEntity, "not_understood", speech.MessageNotUnderstood)
	default:
		respondError(w, http.StatusServiceUnavailable, "unavailable", speech.MessageUnavailable)
	}
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// handleSynthesize returns the audio clip; X-Pacing-Ms carries the expected speaking time.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if s.speaker == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "speech synthesis not configured")
		return
	}
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	lang, err := languages.Lookup(firstNonEmpty(req.Language, languages.DefaultParticipant1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_language", err.Error())
		return
	}

	clip, err := s.speaker.Synthesize(r.Context(), req.Text, lang.Locale)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", clip.ContentType())
	w.Header().Set("X-Pacing-Ms", strconv.FormatInt(s.speaker.Pacing(req.Text).Milliseconds(), 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

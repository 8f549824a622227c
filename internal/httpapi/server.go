package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/bias"
	"github.com/ent0n29/neutralize/internal/config"
	"github.com/ent0n29/neutralize/internal/history"
	"github.com/ent0n29/neutralize/internal/jobdesc"
	"github.com/ent0n29/neutralize/internal/languages"
	"github.com/ent0n29/neutralize/internal/llm"
	"github.com/ent0n29/neutralize/internal/mode"
	"github.com/ent0n29/neutralize/internal/observability"
	"github.com/ent0n29/neutralize/internal/protocol"
	"github.com/ent0n29/neutralize/internal/session"
	"github.com/ent0n29/neutralize/internal/speech"
	"github.com/ent0n29/neutralize/internal/translate"
	"github.com/ent0n29/neutralize/internal/tts"
)

// LocalModel is a generation route whose local model can be released and restarted.
type LocalModel interface {
	CloseLocal() error
	ReopenLocal() error
	LocalStatus() llm.LocalStatus
}

// Deps are the services behind the API. Nil services answer 503.
type Deps struct {
	Config     config.Config
	Mode       *mode.Mode
	Bias       *bias.Analyzer
	Jobs       *jobdesc.Generator
	Translator *translate.Service
	Local      []LocalModel
	Recognizer *speech.Capturer
	Speaker    *tts.Speaker
	History    *history.Recorder
	Sessions   *session.Manager
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

type Server struct {
	cfg        config.Config
	mode       *mode.Mode
	bias       *bias.Analyzer
	jobs       *jobdesc.Generator
	translator *translate.Service
	local      []LocalModel
	recognizer *speech.Capturer
	speaker    *tts.Speaker
	history    *history.Recorder
	sessions   *session.Manager
	metrics    *observability.Metrics
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	live       *liveSessions
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions := d.Sessions
	if sessions == nil {
		sessions = session.NewManager(d.Config.SessionInactivityTimeout)
	}
	cfg := d.Config
	s := &Server{
		cfg:        cfg,
		mode:       d.Mode,
		bias:       d.Bias,
		jobs:       d.Jobs,
		translator: d.Translator,
		local:      d.Local,
		recognizer: d.Recognizer,
		speaker:    d.Speaker,
		history:    d.History,
		sessions:   sessions,
		metrics:    d.Metrics,
		logger:     logger,
		live:       newLiveSessions(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a microphone session unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	sessions.SetExpireHook(func(sess *session.Session) {
		s.live.stop(sess.ID)
		s.metrics.ObserveSessionEvent("expired", sessions.ActiveCount())
		s.logger.Info("session expired", zap.String("session_id", sess.ID), zap.Int("turns", sess.Turns))
	})
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// Routes called by the original frontend, with and without the trailing slash.
	for _, p := range []string{"", "/"} {
		r.Post("/detect-bias"+p, s.handleDetectBias)
		r.Post("/correct-bias"+p, s.handleCorrectBias)
		r.Post("/bias-score"+p, s.handleBiasScore)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/bias/analyze", s.handleAnalyzeBias)
		r.Post("/jobs/description", s.handleJobDescription)
		r.Post("/translate", s.handleTranslate)
		r.Get("/languages", s.handleLanguages)
		r.Get("/mode", s.handleMode)
		r.Post("/mode/refresh", s.handleModeRefresh)

		r.Post("/speech/recognize", s.handleRecognize)
		r.Post("/speech/synthesize", s.handleSynthesize)

		r.Post("/interpreter/session", s.handleCreateSession)
		r.Get("/interpreter/session/ws", s.handleSessionWS)
		r.Get("/interpreter/session/{id}", s.handleGetSession)
		r.Post("/interpreter/session/{id}/end", s.handleEndSession)
		r.Get("/interpreter/sessions", s.handleListSessions)
		r.Get("/interpreter/stats", s.handleInterpreterStats)

		r.Get("/history", s.handleHistory)

		r.Get("/backend/local", s.handleLocalStatus)
		r.Post("/backend/local/close", s.handleLocalClose)
		r.Post("/backend/local/reopen", s.handleLocalReopen)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"online": s.mode.Online(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.bias != nil && s.jobs != nil && s.translator != nil
	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	respondJSON(w, status, map[string]any{
		"status":      state,
		"mode":        s.mode.Status(),
		"local":       s.localStatuses(),
		"speech":      s.recognizer != nil,
		"synthesis":   s.speaker != nil,
		"history":     s.history != nil,
		"sessions":    s.sessions.ActiveCount(),
		"interpreter": s.translator != nil && s.recognizer != nil,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondServiceError maps feature errors to HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rangeErr *jobdesc.RangeError
	switch {
	case errors.Is(err, bias.ErrEmptySentence),
		errors.Is(err, jobdesc.ErrEmptyTitle),
		errors.As(err, &rangeErr),
		errors.Is(err, translate.ErrEmptyText),
		errors.Is(err, tts.ErrEmptyText),
		errors.Is(err, languages.ErrUnsupported):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, llm.ErrModelClosed):
		respondError(w, http.StatusServiceUnavailable, "model_closed", err.Error())
	case errors.Is(err, llm.ErrNoBackend), errors.Is(err, tts.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		respondError(w, http.StatusBadGateway, "generation_failed", err.Error())
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.SpeechRecognized:
		return m.Type, true
	case protocol.Translation:
		return m.Type, true
	case protocol.SynthesizedAudio:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}

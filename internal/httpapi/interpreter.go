package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/audio"
	"github.com/ent0n29/neutralize/internal/history"
	"github.com/ent0n29/neutralize/internal/interpreter"
	"github.com/ent0n29/neutralize/internal/languages"
	"github.com/ent0n29/neutralize/internal/protocol"
	"github.com/ent0n29/neutralize/internal/session"
	"github.com/ent0n29/neutralize/internal/speech"
	"github.com/ent0n29/neutralize/internal/tts"
)

// maxUtteranceSeconds bounds how much uncommitted audio one participant may buffer.
const maxUtteranceSeconds = 30

// maxUtteranceBytes is the same bound at the highest accepted sample rate.
const maxUtteranceBytes = maxUtteranceSeconds * protocol.MaxSampleRate * 2

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	p1, err := s.participant(req.Participant1, s.cfg.Participant1Language, languages.DefaultParticipant1)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_language", err.Error())
		return
	}
	p2, err := s.participant(req.Participant2, s.cfg.Participant2Language, languages.DefaultParticipant2)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_language", err.Error())
		return
	}

	sess := s.sessions.Create(p1, p2)
	s.metrics.ObserveSessionEvent("created", s.sessions.ActiveCount())

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		Status:          sess.Status,
		Participant1:    sess.Participant1.Name,
		Participant2:    sess.Participant2.Name,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) participant(requested, configured, fallback string) (languages.Language, error) {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = strings.TrimSpace(configured)
	}
	if name == "" {
		name = fallback
	}
	return languages.Lookup(name)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"live":    s.live.has(sess.ID),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.live.stop(id)
	s.metrics.ObserveSessionEvent("ended", s.sessions.ActiveCount())
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": s.sessions.List(),
		"active":   s.sessions.ActiveCount(),
	})
}

// liveSessions tracks the interpreter loop attached to each connected session.
type liveSessions struct {
	mu     sync.Mutex
	cancel map[string]context.CancelFunc
}

func newLiveSessions() *liveSessions {
	return &liveSessions{cancel: make(map[string]context.CancelFunc)}
}

// add claims the session for one connection. It fails if another connection holds it.
func (l *liveSessions) add(id string, cancel context.CancelFunc) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cancel[id]; ok {
		return false
	}
	l.cancel[id] = cancel
	return true
}

func (l *liveSessions) remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cancel, id)
}

func (l *liveSessions) has(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.cancel[id]
	return ok
}

func (l *liveSessions) stop(id string) bool {
	l.mu.Lock()
	cancel, ok := l.cancel[id]
	l.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// wsConn is the per-connection state of an interpreter websocket.
type wsConn struct {
	s         *Server
	sess      *session.Session
	listener  *interpreter.StreamListener
	outbound  chan any
	buffers   [2][]byte
	rates     [2]int
	mu        sync.Mutex
	interp    *interpreter.Interpreter
	runCancel context.CancelFunc
	runDone   chan struct{}
}

// send queues a message for the writer goroutine, waiting while the queue is full.
func (c *wsConn) send(ctx context.Context, msg any) bool {
	select {
	case <-ctx.Done():
		return false
	case c.outbound <- msg:
		return true
	}
}

// trySend drops the message when the queue is saturated.
func (c *wsConn) trySend(msg any) {
	t, _ := messageTypeOf(msg)
	select {
	case c.outbound <- msg:
	default:
		c.s.logger.Debug("dropping outbound message", zap.String("type", string(t)))
		c.s.metrics.ObserveWSMessage("dropped", string(t))
	}
}

func (c *wsConn) errorEvent(code, source, detail string, retryable bool) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: c.sess.ID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	}
}

func (c *wsConn) recognized(turn interpreter.Turn) protocol.SpeechRecognized {
	return protocol.SpeechRecognized{
		Type:         protocol.TypeSpeechRecognized,
		SessionID:    c.sess.ID,
		Turn:         turn.Number,
		Speaker:      turn.Speaker,
		Language:     turn.Source.Code,
		Text:         turn.Recognized,
		Unrecognized: turn.Unrecognized,
	}
}

// Deliver streams one finished turn and then holds the loop for the pacing time,
// so the next participant is not prompted while the translation is still playing.
func (c *wsConn) Deliver(ctx context.Context, turn interpreter.Turn) error {
	if !c.send(ctx, c.recognized(turn)) {
		return ctx.Err()
	}
	if !c.send(ctx, protocol.Translation{
		Type:      protocol.TypeTranslation,
		SessionID: c.sess.ID,
		Turn:      turn.Number,
		Speaker:   turn.Speaker,
		Source:    turn.Source.Code,
		Target:    turn.Target.Code,
		Text:      turn.Translation,
		Backend:   turn.Backend,
	}) {
		return ctx.Err()
	}
	if c.s.speaker == nil {
		return nil
	}

	clip, err := c.s.speaker.Synthesize(ctx, turn.Translation, turn.Target.Locale)
	if err != nil {
		if errors.Is(err, tts.ErrEmptyText) {
			return nil
		}
		c.send(ctx, c.errorEvent("synthesis_failed", "tts", err.Error(), true))
		return err
	}
	pace := c.s.speaker.Pacing(turn.Translation)
	if !c.send(ctx, protocol.SynthesizedAudio{
		Type:        protocol.TypeSynthesizedAudio,
		SessionID:   c.sess.ID,
		Turn:        turn.Number,
		Speaker:     turn.Speaker,
		Format:      clip.Format,
		AudioBase64: base64.StdEncoding.EncodeToString(clip.Data),
		PacingMS:    pace.Milliseconds(),
	}) {
		return ctx.Err()
	}

	timer := time.NewTimer(pace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *wsConn) onTurn(turn interpreter.Turn) {
	if err := c.s.sessions.RecordTurn(c.sess.ID, turn.Unrecognized); err != nil {
		c.s.logger.Debug("recording turn failed", zap.String("session_id", c.sess.ID), zap.Error(err))
	}
	c.s.history.Record(context.Background(), history.KindInterpreter, turn.Recognized, turn.Translation, turn.Backend)
	if turn.Translation == "" {
		// Delivery was skipped, so the client has not seen this turn yet.
		c.trySend(c.recognized(turn))
		c.trySend(c.errorEvent("translation_failed", "translate", turn.Error, true))
	}
}

// start launches the interpreter loop unless one is already running.
func (c *wsConn) start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCancel != nil {
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	in := interpreter.New(c.listener, c.s.translator, c, interpreter.Config{
		Participant1: c.sess.Participant1,
		Participant2: c.sess.Participant2,
		OnTurn:       c.onTurn,
	}, c.s.metrics, c.s.logger)
	c.interp = in
	c.runCancel = cancel
	c.runDone = done

	go func() {
		defer close(done)
		if err := in.Run(runCtx); err != nil {
			c.s.logger.Warn("interpreter loop failed", zap.String("session_id", c.sess.ID), zap.Error(err))
			c.trySend(c.errorEvent("interpreter_failed", "interpreter", err.Error(), false))
		}
		c.trySend(protocol.SystemEvent{
			Type:      protocol.TypeSystemEvent,
			SessionID: c.sess.ID,
			Code:      "interpreter_stopped",
		})
	}()
	c.trySend(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: c.sess.ID,
		Code:      "interpreter_started",
		Detail:    c.sess.Participant1.Name + " <> " + c.sess.Participant2.Name,
	})
	return true
}

// stop cancels the loop and waits for it to exit.
// stop cancels the loop immediately; used when the connection or session goes away.
func (c *wsConn) stop() {
	c.mu.Lock()
	cancel, done := c.runCancel, c.runDone
	c.runCancel, c.runDone, c.interp = nil, nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// halt handles a stop control: the turn being delivered finishes and is
// recorded, then the loop exits.
func (c *wsConn) halt() {
	c.mu.Lock()
	in, cancel, done := c.interp, c.runCancel, c.runDone
	c.runCancel, c.runDone, c.interp = nil, nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	in.Stop()
	<-done
	cancel()
}

func (c *wsConn) handleAudio(chunk protocol.ClientAudioChunk) {
	i := chunk.Speaker - 1
	if chunk.PCM16Base64 != "" {
		pcm, err := base64.StdEncoding.DecodeString(chunk.PCM16Base64)
		if err != nil {
			c.trySend(c.errorEvent("invalid_audio", "gateway", err.Error(), false))
			return
		}
		if c.rates[i] != 0 && c.rates[i] != chunk.SampleRate {
			c.buffers[i] = c.buffers[i][:0]
		}
		c.rates[i] = chunk.SampleRate
		c.buffers[i] = append(c.buffers[i], pcm...)
		if len(c.buffers[i]) > maxUtteranceBytes || audio.Duration(len(c.buffers[i]), chunk.SampleRate) > maxUtteranceSeconds {
			c.buffers[i] = nil
			c.trySend(c.errorEvent("utterance_too_long", "gateway", "commit audio at least every 30 seconds", false))
			return
		}
	}
	if !chunk.Commit {
		return
	}
	u := speech.Utterance{PCM: c.buffers[i], SampleRate: c.rates[i]}
	if u.SampleRate == 0 {
		u.SampleRate = chunk.SampleRate
	}
	c.buffers[i] = nil
	if err := c.listener.Push(chunk.Speaker, u); err != nil {
		c.trySend(c.errorEvent("queue_full", "gateway", err.Error(), true))
	}
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.translator == nil || s.recognizer == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "interpreter not configured")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.Status != session.StatusActive {
		respondError(w, http.StatusConflict, "session_ended", "session has ended")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if !s.live.add(sessionID, cancel) {
		respondError(w, http.StatusConflict, "session_busy", "session already has a live connection")
		return
	}
	defer s.live.remove(sessionID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected", s.sessions.ActiveCount())

	c := &wsConn{
		s:        s,
		sess:     sess,
		listener: interpreter.NewStreamListener(s.recognizer, 4),
		outbound: make(chan any, 64),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-c.outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.logger.Debug("websocket write failed", zap.String("session_id", sessionID), zap.Error(err))
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.ObserveWSMessage("outbound", string(t))
				}
			}
		}
	}()

	// Unblock the read loop when the session is ended or expired elsewhere.
	go func() {
		<-ctx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	c.start(ctx)

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			c.trySend(c.errorEvent("invalid_client_message", "gateway", err.Error(), false))
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		_ = s.sessions.Touch(sessionID)

		switch m := parsed.(type) {
		case protocol.ClientAudioChunk:
			c.handleAudio(m)
		case protocol.ClientControl:
			switch m.Action {
			case protocol.ActionStart:
				c.start(ctx)
			case protocol.ActionStop:
				c.halt()
			}
		}
	}

	cancel()
	c.stop()
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected", s.sessions.ActiveCount())
}

// Package interpreter runs the two-party live interpretation loop.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/languages"
	"github.com/ent0n29/neutralize/internal/observability"
	"github.com/ent0n29/neutralize/internal/speech"
	"github.com/ent0n29/neutralize/internal/translate"
)

var ErrAlreadyRunning = errors.New("interpreter is already running")

// errStopped ends a turn that was still waiting for speech when Stop was called.
var errStopped = errors.New("interpreter stopped")

// Listener returns what a participant (1 or 2) said, recognized in locale.
type Listener interface {
	Listen(ctx context.Context, participant int, locale string) (string, error)
}

// Translator is satisfied by *translate.Service.
type Translator interface {
	Translate(ctx context.Context, req translate.Request) (translate.Result, error)
}

// Output presents a finished turn, typically by speaking the translation.
type Output interface {
	Deliver(ctx context.Context, turn Turn) error
}

// Turn is one direction of the conversation.
type Turn struct {
	Number      int                `json:"turn"`
	Speaker     int                `json:"speaker"`
	Source      languages.Language `json:"source"`
	Target      languages.Language `json:"target"`
	Recognized  string             `json:"recognized"`
	Translation string             `json:"translation"`
	Backend     string             `json:"backend,omitempty"`
	// Unrecognized is set when Recognized holds the placeholder text.
	Unrecognized bool   `json:"unrecognized,omitempty"`
	Error        string `json:"error,omitempty"`
}

type Config struct {
	Participant1 languages.Language
	Participant2 languages.Language
	// OnTurn is called after every turn, before the stop flag is checked.
	OnTurn func(Turn)
}

// Interpreter alternates participant 1 → 2 and 2 → 1 until stopped.
type Interpreter struct {
	listener   Listener
	translator Translator
	output     Output
	cfg        Config
	metrics    *observability.Metrics
	logger     *zap.Logger

	active  atomic.Bool
	running atomic.Bool
	turns   atomic.Int64

	mu         sync.Mutex
	stopListen context.CancelFunc
}

func New(listener Listener, translator Translator, output Output, cfg Config, metrics *observability.Metrics, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Participant1.Code == "" {
		cfg.Participant1 = languages.MustLookup(languages.DefaultParticipant1)
	}
	if cfg.Participant2.Code == "" {
		cfg.Participant2 = languages.MustLookup(languages.DefaultParticipant2)
	}
	return &Interpreter{
		listener:   listener,
		translator: translator,
		output:     output,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// Active reports whether the loop should keep going.
func (in *Interpreter) Active() bool { return in.active.Load() }

// Stop clears the active flag. A turn already past listening is translated,
// delivered and counted before the loop exits; a pending listen is abandoned.
func (in *Interpreter) Stop() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.active.Store(false)
	if in.stopListen != nil {
		in.stopListen()
	}
}

// listenContext derives the context a turn listens with. Stop cancels it
// without touching the rest of the turn.
func (in *Interpreter) listenContext(ctx context.Context) (context.Context, context.CancelFunc) {
	in.mu.Lock()
	defer in.mu.Unlock()
	listenCtx, cancel := context.WithCancel(ctx)
	if in.running.Load() && !in.active.Load() {
		cancel()
		return listenCtx, cancel
	}
	in.stopListen = cancel
	return listenCtx, func() {
		in.mu.Lock()
		in.stopListen = nil
		in.mu.Unlock()
		cancel()
	}
}

// Turns returns the number of completed turns.
func (in *Interpreter) Turns() int { return int(in.turns.Load()) }

func (in *Interpreter) Participants() (languages.Language, languages.Language) {
	return in.cfg.Participant1, in.cfg.Participant2
}

// Run blocks until Stop is called or ctx ends. A cancelled ctx is not an error.
func (in *Interpreter) Run(ctx context.Context) error {
	if !in.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer in.running.Store(false)
	in.mu.Lock()
	in.active.Store(true)
	in.mu.Unlock()
	defer in.active.Store(false)

	p1, p2 := in.cfg.Participant1, in.cfg.Participant2
	in.logger.Info("interpreter started",
		zap.String("participant1", p1.Name),
		zap.String("participant2", p2.Name),
	)
	directions := [2]struct {
		speaker  int
		src, dst languages.Language
	}{
		{1, p1, p2},
		{2, p2, p1},
	}
	for in.active.Load() {
		for _, d := range directions {
			if _, err := in.RunTurn(ctx, d.speaker, d.src, d.dst); err != nil {
				if ctx.Err() != nil || errors.Is(err, errStopped) {
					in.logger.Info("interpreter stopped", zap.Int("turns", in.Turns()))
					return nil
				}
				return err
			}
			if !in.active.Load() {
				break
			}
		}
	}
	in.logger.Info("interpreter stopped", zap.Int("turns", in.Turns()))
	return nil
}

// RunTurn listens to one participant, translates and delivers the result.
// Only context errors and a missing microphone are returned; other failures
// are reported on the Turn.
func (in *Interpreter) RunTurn(ctx context.Context, speaker int, src, dst languages.Language) (Turn, error) {
	start := time.Now()
	// One loop goroutine per Interpreter, so the next number is stable until Add below.
	turn := Turn{Number: in.Turns() + 1, Speaker: speaker, Source: src, Target: dst}

	listenCtx, stopListening := in.listenContext(ctx)
	text, err := in.listener.Listen(listenCtx, speaker, src.Locale)
	stopped := listenCtx.Err() != nil
	stopListening()
	if err != nil {
		if ctx.Err() != nil {
			return turn, ctx.Err()
		}
		if stopped {
			return turn, errStopped
		}
		if errors.Is(err, speech.ErrNoMicrophone) {
			return turn, err
		}
		in.logger.Info("speech not recognized",
			zap.Int("speaker", speaker),
			zap.String("language", src.Name),
			zap.Error(err),
		)
		text = speech.MessageUnrecognized
		turn.Unrecognized = true
		turn.Error = speech.Message(err)
	}
	turn.Recognized = text

	tStart := time.Now()
	res, err := in.translator.Translate(ctx, translate.Request{Text: text, Source: src.Code, Target: dst.Code})
	in.metrics.ObserveStage(observability.StageTranslate, time.Since(tStart))
	outcome := "ok"
	switch {
	case err != nil && ctx.Err() != nil:
		return turn, ctx.Err()
	case err != nil:
		in.logger.Warn("translation failed",
			zap.String("source", src.Code),
			zap.String("target", dst.Code),
			zap.Error(err),
		)
		turn.Error = fmt.Sprintf("translation failed: %v", err)
		outcome = "translate_failed"
	default:
		turn.Translation = res.Text
		turn.Backend = res.Backend
		if turn.Unrecognized {
			outcome = "unrecognized"
		}
	}

	if turn.Translation != "" && in.output != nil {
		if err := in.output.Deliver(ctx, turn); err != nil {
			if ctx.Err() != nil {
				return turn, ctx.Err()
			}
			in.logger.Warn("delivering turn failed", zap.Int("speaker", speaker), zap.Error(err))
			turn.Error = fmt.Sprintf("playback failed: %v", err)
			outcome = "deliver_failed"
		}
	}

	in.turns.Add(1)
	in.metrics.ObserveStage(observability.StageTurnTotal, time.Since(start))
	in.metrics.ObserveInterpreterTurn(src.Code, outcome)
	if in.cfg.OnTurn != nil {
		in.cfg.OnTurn(turn)
	}
	return turn, nil
}

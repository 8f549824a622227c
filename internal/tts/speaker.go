package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/observability"
)

// Player starts playback of an audio file and reports when the player process exits.
type Player interface {
	Play(ctx context.Context, path string) (<-chan error, error)
}

// CommandPlayer runs an external player such as `ffplay -nodisp -autoexit`; the file path is appended.
type CommandPlayer struct {
	argv []string
}

// NewCommandPlayer returns nil for an empty command line or "none".
func NewCommandPlayer(cmdline string) *CommandPlayer {
	argv := strings.Fields(cmdline)
	if len(argv) == 0 || strings.EqualFold(argv[0], "none") {
		return nil
	}
	return &CommandPlayer{argv: argv}
}

func (p *CommandPlayer) Play(ctx context.Context, path string) (<-chan error, error) {
	args := append(append([]string{}, p.argv[1:]...), path)
	cmd := exec.CommandContext(ctx, p.argv[0], args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting player %s failed: %w", p.argv[0], err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return done, nil
}

// SpeakerConfig configures synthesis playback.
type SpeakerConfig struct {
	// PacingPerChar is how long each character of the text is assumed to take to speak.
	PacingPerChar time.Duration
}

// Speaker synthesizes text, plays it, and blocks for an estimated speaking time
// instead of monitoring the player.
type Speaker struct {
	synth   Synthesizer
	player  Player
	pacing  time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
	wait    func(ctx context.Context, d time.Duration) error
}

func NewSpeaker(synth Synthesizer, player Player, cfg SpeakerConfig, metrics *observability.Metrics, logger *zap.Logger) *Speaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PacingPerChar < 0 {
		cfg.PacingPerChar = 0
	}
	return &Speaker{
		synth:   synth,
		player:  player,
		pacing:  cfg.PacingPerChar,
		metrics: metrics,
		logger:  logger,
		wait:    sleepContext,
	}
}

// Pacing returns the estimated speaking time for text.
func (s *Speaker) Pacing(text string) time.Duration {
	return time.Duration(utf8.RuneCountInString(text)) * s.pacing
}

// Synthesize renders text without playing it.
func (s *Speaker) Synthesize(ctx context.Context, text, locale string) (Audio, error) {
	spoken := SpeakableText(text)
	if spoken == "" {
		return Audio{}, ErrEmptyText
	}
	if s.synth == nil {
		return Audio{}, ErrUnavailable
	}
	start := time.Now()
	a, err := s.synth.Synthesize(ctx, spoken, locale)
	s.metrics.ObserveStage(observability.StageSynthesize, time.Since(start))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.metrics.ObserveSpeech("synthesize", "failed")
		}
		return Audio{}, err
	}
	s.metrics.ObserveSpeech("synthesize", "ok")
	return a, nil
}

// Speak synthesizes text in locale, starts playback and returns after the paced delay.
func (s *Speaker) Speak(ctx context.Context, text, locale string) error {
	a, err := s.Synthesize(ctx, text, locale)
	if err != nil {
		return err
	}
	return s.Play(ctx, a, s.Pacing(text))
}

// Play writes the clip to a temporary file, starts the player and waits out pace.
func (s *Speaker) Play(ctx context.Context, a Audio, pace time.Duration) error {
	start := time.Now()
	defer func() {
		s.metrics.ObserveStage(observability.StagePlayback, time.Since(start))
	}()

	if s.player == nil {
		return s.wait(ctx, pace)
	}

	f, err := os.CreateTemp("", "neutralize-tts-*"+a.Ext())
	if err != nil {
		return err
	}
	path := f.Name()
	if _, err := f.Write(a.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}

	done, err := s.player.Play(ctx, path)
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	go func() {
		if err := <-done; err != nil && ctx.Err() == nil {
			s.logger.Debug("player exited with error", zap.Error(err))
		}
		_ = os.Remove(path)
	}()

	return s.wait(ctx, pace-time.Since(start))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

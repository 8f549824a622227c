// Package tts synthesizes speech and plays it back with paced completion.
package tts

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/mode"
)

var (
	ErrEmptyText   = errors.New("nothing to synthesize")
	ErrUnavailable = errors.New("speech synthesis unavailable")
)

// Audio is one synthesized clip.
type Audio struct {
	Data []byte
	// Format is the container, "mp3" or "wav".
	Format string
}

func (a Audio) Ext() string {
	if a.Format == "" {
		return ".bin"
	}
	return "." + a.Format
}

func (a Audio) ContentType() string {
	switch a.Format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Synthesizer renders text as speech in the given locale (e.g. "ja-JP").
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, locale string) (Audio, error)
}

// FailoverSynthesizer prefers the online synthesizer while online and falls back to the offline one.
type FailoverSynthesizer struct {
	online  Synthesizer
	offline Synthesizer
	mode    *mode.Mode
	logger  *zap.Logger
}

func NewFailoverSynthesizer(online, offline Synthesizer, m *mode.Mode, logger *zap.Logger) *FailoverSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailoverSynthesizer{online: online, offline: offline, mode: m, logger: logger}
}

func (s *FailoverSynthesizer) Name() string {
	if s.online != nil && s.mode.Online() {
		return s.online.Name()
	}
	if s.offline != nil {
		return s.offline.Name()
	}
	return "none"
}

func (s *FailoverSynthesizer) Synthesize(ctx context.Context, text, locale string) (Audio, error) {
	if text == "" {
		return Audio{}, ErrEmptyText
	}
	var onlineErr error
	if s.online != nil && s.mode.Online() {
		a, err := s.online.Synthesize(ctx, text, locale)
		if err == nil {
			return a, nil
		}
		if ctx.Err() != nil {
			return Audio{}, ctx.Err()
		}
		onlineErr = err
		s.logger.Warn("online speech synthesis failed, trying offline synthesizer",
			zap.String("synthesizer", s.online.Name()),
			zap.Error(err),
		)
	}
	if s.offline == nil {
		if onlineErr != nil {
			return Audio{}, fmt.Errorf("%w: %v", ErrUnavailable, onlineErr)
		}
		return Audio{}, ErrUnavailable
	}
	a, err := s.offline.Synthesize(ctx, text, locale)
	if err != nil {
		if onlineErr != nil {
			return Audio{}, fmt.Errorf("%w: offline: %v; online: %v", ErrUnavailable, err, onlineErr)
		}
		return Audio{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return a, nil
}

package speech

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/mode"
)

// FailoverRecognizer prefers the online recognizer while the process is online and
// switches to the offline one when the online call fails for any reason other than
// unintelligible audio.
type FailoverRecognizer struct {
	online  Recognizer
	offline Recognizer
	mode    *mode.Mode
	logger  *zap.Logger
}

func NewFailoverRecognizer(online, offline Recognizer, m *mode.Mode, logger *zap.Logger) *FailoverRecognizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailoverRecognizer{online: online, offline: offline, mode: m, logger: logger}
}

func (r *FailoverRecognizer) Name() string {
	if r.online != nil && r.mode.Online() {
		return r.online.Name()
	}
	if r.offline != nil {
		return r.offline.Name()
	}
	return "none"
}

func (r *FailoverRecognizer) Recognize(ctx context.Context, u Utterance, locale string) (string, error) {
	var onlineErr error
	if r.online != nil && r.mode.Online() {
		text, err := r.online.Recognize(ctx, u, locale)
		if err == nil || errors.Is(err, ErrNotUnderstood) {
			return text, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		onlineErr = err
		r.logger.Warn("online speech recognition failed, trying offline recognizer",
			zap.String("recognizer", r.online.Name()),
			zap.Error(err),
		)
	}
	if r.offline == nil {
		if onlineErr != nil {
			return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, onlineErr)
		}
		return "", ErrServiceUnavailable
	}
	text, err := r.offline.Recognize(ctx, u, locale)
	if err != nil && !errors.Is(err, ErrNotUnderstood) && !errors.Is(err, ErrServiceUnavailable) {
		if onlineErr != nil {
			return "", fmt.Errorf("%w: offline: %v; online: %v", ErrServiceUnavailable, err, onlineErr)
		}
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return text, err
}

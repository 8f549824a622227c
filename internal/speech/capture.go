package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/observability"
)

// Capturer records one phrase from a microphone and recognizes it.
type Capturer struct {
	mu      sync.Mutex
	mic     Microphone
	rec     Recognizer
	cfg     ListenConfig
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewCapturer(mic Microphone, rec Recognizer, cfg ListenConfig, metrics *observability.Metrics, logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{mic: mic, rec: rec, cfg: cfg, metrics: metrics, logger: logger}
}

// Record listens for one phrase without recognizing it.
func (c *Capturer) Record(ctx context.Context) (Utterance, error) {
	if c == nil || c.mic == nil {
		return Utterance{}, ErrNoMicrophone
	}
	// One phrase at a time per device.
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mic.Start(); err != nil {
		return Utterance{}, errors.Join(ErrServiceUnavailable, err)
	}
	defer func() {
		if err := c.mic.Stop(); err != nil {
			c.logger.Debug("stopping microphone failed", zap.Error(err))
		}
	}()

	start := time.Now()
	u, err := Listen(ctx, c.mic, c.cfg)
	c.metrics.ObserveStage(observability.StageCapture, time.Since(start))
	return u, err
}

// Capture records one phrase and returns its transcript in the given locale.
// Errors wrap ErrNotUnderstood or ErrServiceUnavailable; use Message for display text.
func (c *Capturer) Capture(ctx context.Context, locale string) (string, error) {
	u, err := c.Record(ctx)
	if err != nil {
		c.observe(err)
		return "", err
	}
	return c.Recognize(ctx, u, locale)
}

// Recognize transcribes an already recorded utterance.
func (c *Capturer) Recognize(ctx context.Context, u Utterance, locale string) (string, error) {
	if c == nil || c.rec == nil {
		return "", ErrServiceUnavailable
	}
	start := time.Now()
	text, err := c.rec.Recognize(ctx, u, locale)
	c.metrics.ObserveStage(observability.StageRecognize, time.Since(start))
	if err == nil && text == "" {
		err = ErrNotUnderstood
	}
	c.observe(err)
	if err != nil {
		c.logger.Info("speech recognition failed",
			zap.String("recognizer", c.rec.Name()),
			zap.String("locale", locale),
			zap.String("outcome", Outcome(err)),
			zap.Error(err),
		)
		return "", err
	}
	return text, nil
}

func (c *Capturer) observe(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	c.metrics.ObserveSpeech("recognize", Outcome(err))
}

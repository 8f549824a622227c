// Package translate selects an online or offline translator and caches results.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/languages"
	"github.com/ent0n29/neutralize/internal/mode"
	"github.com/ent0n29/neutralize/internal/observability"
)

var ErrEmptyText = errors.New("text is required")

// Translator converts text between two supported languages.
type Translator interface {
	Name() string
	Translate(ctx context.Context, text string, src, dst languages.Language) (string, error)
}

// Request names languages by display name or code; Source may be "auto".
type Request struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type Result struct {
	Text    string `json:"text"`
	Source  string `json:"source"`
	Target  string `json:"target"`
	Backend string `json:"backend"`
	Cached  bool   `json:"cached,omitempty"`
}

type Config struct {
	Online   Translator
	Offline  Translator
	Mode     *mode.Mode
	Cache    *Cache
	Detector *languages.Detector
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

type Service struct {
	online   Translator
	offline  Translator
	mode     *mode.Mode
	cache    *Cache
	detector *languages.Detector
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		online:   cfg.Online,
		offline:  cfg.Offline,
		mode:     cfg.Mode,
		cache:    cfg.Cache,
		detector: cfg.Detector,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// Translate resolves the languages, then uses the online translator when online and the offline one
// otherwise or when the online call fails.
func (s *Service) Translate(ctx context.Context, req Request) (Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Result{}, ErrEmptyText
	}
	dst, err := languages.Lookup(req.Target)
	if err != nil {
		return Result{}, err
	}
	src, err := s.resolveSource(text, req.Source)
	if err != nil {
		return Result{}, err
	}
	if src.Code == dst.Code {
		return Result{Text: text, Source: src.Code, Target: dst.Code, Backend: "identity"}, nil
	}

	var onlineErr error
	if s.online != nil && s.mode.Online() {
		out, err := s.translateWith(ctx, s.online, text, src, dst)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return Result{}, err
		}
		onlineErr = err
		s.logger.Warn("online translation failed, using offline translator",
			zap.String("source", src.Code),
			zap.String("target", dst.Code),
			zap.Error(err),
		)
	}
	if s.offline == nil {
		if onlineErr != nil {
			return Result{}, onlineErr
		}
		return Result{}, fmt.Errorf("no translator available")
	}
	out, err := s.translateWith(ctx, s.offline, text, src, dst)
	if err != nil && onlineErr != nil {
		return Result{}, fmt.Errorf("offline translation error: %w; online translation error: %v", err, onlineErr)
	}
	return out, err
}

func (s *Service) resolveSource(text, source string) (languages.Language, error) {
	source = strings.TrimSpace(source)
	if source != "" && !strings.EqualFold(source, languages.Auto) {
		return languages.Lookup(source)
	}
	if l, ok := s.detector.Detect(text); ok {
		return l, nil
	}
	// The online API detects on its own when Source is empty.
	return languages.Language{}, nil
}

func (s *Service) translateWith(ctx context.Context, t Translator, text string, src, dst languages.Language) (Result, error) {
	key := GenerateKey(t.Name(), src.Code, dst.Code, text)
	if entry, ok := s.cache.Get(key); ok {
		s.metrics.ObserveTranslation(t.Name(), "cache_hit")
		return Result{Text: entry.Text, Source: src.Code, Target: dst.Code, Backend: entry.Backend, Cached: true}, nil
	}

	out, err := t.Translate(ctx, text, src, dst)
	if err != nil {
		s.metrics.ObserveTranslation(t.Name(), "error")
		return Result{}, err
	}
	s.metrics.ObserveTranslation(t.Name(), "ok")

	// Best effort.
	if err := s.cache.Set(key, Entry{Text: out, Backend: t.Name(), StoredAt: time.Now().UTC()}); err != nil {
		s.logger.Debug("translation cache write failed", zap.Error(err))
	}
	return Result{Text: out, Source: src.Code, Target: dst.Code, Backend: t.Name()}, nil
}

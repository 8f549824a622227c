package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/mode"
	"github.com/ent0n29/neutralize/internal/observability"
	"github.com/ent0n29/neutralize/internal/reliability"
)

// Result is a completed generation and the backend that produced it.
type Result struct {
	Text     string `json:"text"`
	Backend  string `json:"backend"`
	FellBack bool   `json:"fell_back,omitempty"`
}

// Generator is what the feature packages depend on.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (Result, error)
}

// RouterConfig wires a Router. Remote and Local are both optional.
type RouterConfig struct {
	Remote      Backend
	Local       LocalBackend
	Mode        *mode.Mode
	LocalSuffix string
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// Router sends a prompt to the remote backend when online and falls back to the local
// backend on error or empty output. Each backend gets exactly one attempt.
type Router struct {
	remote  Backend
	local   LocalBackend
	mode    *mode.Mode
	suffix  string
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		remote:  cfg.Remote,
		local:   cfg.Local,
		mode:    cfg.Mode,
		suffix:  cfg.LocalSuffix,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// WithSuffix returns a Router sharing the same backends with a different local prompt suffix.
func (r *Router) WithSuffix(suffix string) *Router {
	cp := *r
	cp.suffix = suffix
	return &cp
}

// WithLocal returns a Router sharing the remote backend with a different local backend.
func (r *Router) WithLocal(local LocalBackend) *Router {
	cp := *r
	cp.local = local
	return &cp
}

func (r *Router) Online() bool {
	return r.remote != nil && r.mode.Online()
}

func (r *Router) Generate(ctx context.Context, prompt string, opts Options) (Result, error) {
	var remoteErr error
	if r.Online() {
		start := time.Now()
		text, err := r.remote.Generate(ctx, prompt, opts)
		text = strings.TrimSpace(text)
		if err == nil && text == "" {
			err = reliability.ErrEmptyResponse
		}
		if err == nil {
			r.metrics.ObserveGeneration(r.remote.Name(), "ok", time.Since(start))
			return Result{Text: text, Backend: r.remote.Name()}, nil
		}
		reason := reliability.Classify(err)
		r.metrics.ObserveGeneration(r.remote.Name(), reason, time.Since(start))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		remoteErr = err
		r.metrics.ObserveFallback(reason)
		r.logger.Warn("remote generation failed, falling back to local model",
			zap.String("backend", r.remote.Name()),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}

	if r.local == nil {
		if remoteErr != nil {
			return Result{}, fmt.Errorf("remote generation error: %w; %v", remoteErr, ErrNoBackend)
		}
		return Result{}, ErrNoBackend
	}

	start := time.Now()
	raw, err := r.local.Generate(ctx, prompt+r.suffix, opts)
	if err != nil {
		r.metrics.ObserveGeneration(r.local.Name(), reliability.Classify(err), time.Since(start))
		if remoteErr != nil {
			return Result{}, fmt.Errorf("local generation error: %w; remote generation error: %v", err, remoteErr)
		}
		return Result{}, fmt.Errorf("local generation error: %w", err)
	}
	r.metrics.ObserveGeneration(r.local.Name(), "ok", time.Since(start))
	r.logger.Debug("local generation complete",
		zap.String("backend", r.local.Name()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return Result{
		Text:     StripThinking(raw),
		Backend:  r.local.Name(),
		FellBack: remoteErr != nil,
	}, nil
}

// CloseLocal releases the local model. Later local calls fail with ErrModelClosed until ReopenLocal.
func (r *Router) CloseLocal() error {
	if r.local == nil {
		return nil
	}
	r.logger.Info("closing local model", zap.String("backend", r.local.Name()))
	return r.local.Close()
}

func (r *Router) ReopenLocal() error {
	if r.local == nil {
		return nil
	}
	return r.local.Reopen()
}

// LocalStatus describes the local backend for status endpoints.
type LocalStatus struct {
	Backend string `json:"backend"`
	Closed  bool   `json:"closed"`
}

func (r *Router) LocalStatus() LocalStatus {
	if r.local == nil {
		return LocalStatus{Backend: "none", Closed: true}
	}
	return LocalStatus{Backend: r.local.Name(), Closed: r.local.Closed()}
}

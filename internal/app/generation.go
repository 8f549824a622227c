package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/config"
	"github.com/ent0n29/neutralize/internal/llm"
	"github.com/ent0n29/neutralize/internal/mode"
	"github.com/ent0n29/neutralize/internal/observability"
)

type generationSetup struct {
	// bias and jobs hold separate local models; the job description model needs a larger context.
	bias      *llm.Router
	jobs      *llm.Router
	translate *llm.Router
	detail    string
	cleanup   []func() error
}

func resolveGeneration(ctx context.Context, cfg config.Config, m *mode.Mode, metrics *observability.Metrics, logger *zap.Logger) generationSetup {
	var setup generationSetup

	remote, err := newRemoteBackend(ctx, cfg)
	if err != nil {
		logger.Warn("remote backend unavailable, running local only", zap.Error(err))
		m.Disable(err.Error())
	}

	biasLocal, err := newLocalBackend(cfg, cfg.LocalContextSize)
	if err != nil {
		// Online generation still works; offline requests will answer ErrNoBackend.
		logger.Warn("local model unavailable", zap.Error(err))
	}
	jobsLocal, err := newLocalBackend(cfg, cfg.JobDescCtxSize)
	if err != nil {
		logger.Warn("local job description model unavailable", zap.Error(err))
	}
	for _, l := range []llm.LocalBackend{biasLocal, jobsLocal} {
		if l != nil {
			setup.cleanup = append(setup.cleanup, l.Close)
		}
	}

	setup.bias = llm.NewRouter(llm.RouterConfig{
		Remote:      remote,
		Local:       biasLocal,
		Mode:        m,
		LocalSuffix: llm.SuffixAnswer,
		Logger:      logger,
		Metrics:     metrics,
	})
	setup.jobs = setup.bias.WithLocal(jobsLocal).WithSuffix(llm.SuffixResponse)
	// The translation prompt carries its own "Translation:" cue.
	setup.translate = setup.bias.WithSuffix("")

	remoteName, localName := "none", "none"
	if remote != nil {
		remoteName = remote.Name()
	}
	if biasLocal != nil {
		localName = biasLocal.Name()
	}
	setup.detail = fmt.Sprintf("remote=%s local=%s", remoteName, localName)
	return setup
}

// newRemoteBackend returns nil without error when no key is configured.
func newRemoteBackend(ctx context.Context, cfg config.Config) (llm.Backend, error) {
	switch cfg.RemoteProvider {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, nil
		}
		b, err := llm.NewOpenAIBackend(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		if strings.TrimSpace(cfg.GoogleAPIKey) == "" {
			return nil, nil
		}
		b, err := llm.NewGeminiBackend(ctx, llm.GeminiConfig{
			APIKey: cfg.GoogleAPIKey,
			Model:  cfg.GeminiModel,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

func newLocalBackend(cfg config.Config, contextSize int) (llm.LocalBackend, error) {
	switch cfg.LocalBackend {
	case "none":
		return nil, nil
	case "mock":
		return llm.NewMockBackend(), nil
	case "ollama":
		return llm.NewOllamaBackend(llm.OllamaConfig{
			URL:   cfg.OllamaURL,
			Model: cfg.OllamaModel,
		}), nil
	default:
		b, err := llm.NewLlamaBackend(llm.LlamaConfig{
			ServerBinary: cfg.LocalLlamaServer,
			URL:          cfg.LocalLlamaURL,
			ModelPath:    cfg.LocalModelPath,
			ContextSize:  contextSize,
			Threads:      cfg.LocalThreads,
			Mlock:        cfg.LocalMlock,
			F16KV:        cfg.LocalF16KV,
		})
		if err != nil {
			return nil, fmt.Errorf("local model init failed: %w", err)
		}
		return b, nil
	}
}

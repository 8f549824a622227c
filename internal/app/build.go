package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/bias"
	"github.com/ent0n29/neutralize/internal/config"
	"github.com/ent0n29/neutralize/internal/history"
	"github.com/ent0n29/neutralize/internal/httpapi"
	"github.com/ent0n29/neutralize/internal/jobdesc"
	"github.com/ent0n29/neutralize/internal/languages"
	"github.com/ent0n29/neutralize/internal/mode"
	"github.com/ent0n29/neutralize/internal/observability"
	"github.com/ent0n29/neutralize/internal/session"
	"github.com/ent0n29/neutralize/internal/speech"
	"github.com/ent0n29/neutralize/internal/translate"
	"github.com/ent0n29/neutralize/internal/tts"
)

type Options struct {
	// Microphone opens the default input device and a local audio player.
	Microphone bool
	// SkipProbe starts offline without touching the network.
	SkipProbe bool
}

type BuildResult struct {
	Config     config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Mode       *mode.Mode
	Bias       *bias.Analyzer
	Jobs       *jobdesc.Generator
	Translator *translate.Service
	Capturer   *speech.Capturer
	Speaker    *tts.Speaker
	History    *history.Recorder
	Sessions   *session.Manager
	API        *httpapi.Server
	Backends   string
	Voice      string

	// Cleanup should be called on shutdown to release external resources (DB, local model servers, etc).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	var cleanup []func() error
	runCleanup := func() error {
		var errs []error
		// Release in reverse order of acquisition.
		for i := len(cleanup) - 1; i >= 0; i-- {
			if err := cleanup[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*BuildResult, error) {
		_ = runCleanup()
		return nil, err
	}

	apiKey := cfg.GoogleAPIKey
	if cfg.RemoteProvider == "openai" {
		apiKey = cfg.OpenAIAPIKey
	}
	var m *mode.Mode
	if opts.SkipProbe {
		m = mode.Fixed(false)
	} else {
		m = mode.Detect(ctx, apiKey, mode.TCPProbe{Addr: cfg.ProbeAddr, Timeout: cfg.ProbeTimeout})
	}
	status := m.Status()
	logger.Info("connectivity mode resolved",
		zap.Bool("online", status.Online),
		zap.Bool("key_present", status.KeyPresent),
		zap.Bool("probe_succeeded", status.ProbeSucceeded),
	)

	gen := resolveGeneration(ctx, cfg, m, metrics, logger)
	cleanup = append(cleanup, gen.cleanup...)

	cache, err := translate.OpenCache(cfg.CacheDir, cfg.CacheTTL)
	if err != nil {
		return fail(fmt.Errorf("translation cache init failed: %w", err))
	}
	cleanup = append(cleanup, cache.Close)

	var onlineTranslator translate.Translator
	if strings.TrimSpace(cfg.GoogleAPIKey) != "" {
		gt, err := translate.NewGoogleTranslator(ctx, cfg.GoogleAPIKey)
		if err != nil {
			logger.Warn("google translator unavailable", zap.Error(err))
		} else {
			onlineTranslator = gt
			cleanup = append(cleanup, gt.Close)
		}
	}
	var offlineTranslator translate.Translator
	if gen.translate != nil {
		offlineTranslator = translate.NewLLMTranslator(gen.translate, 0)
	}
	translator := translate.NewService(translate.Config{
		Online:   onlineTranslator,
		Offline:  offlineTranslator,
		Mode:     m,
		Cache:    cache,
		Detector: languages.NewDetector(),
		Logger:   logger,
		Metrics:  metrics,
	})

	voice, err := resolveVoice(ctx, cfg, m, opts.Microphone, metrics, logger)
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, voice.cleanup...)

	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("history store init failed: %w", err))
	}
	cleanup = append(cleanup, store.Close)
	recorder := history.NewRecorder(store, logger)

	analyzer := bias.NewAnalyzer(gen.bias, bias.Config{
		MaxTokens:   cfg.BiasMaxTokens,
		Temperature: cfg.BiasTemperature,
	}, logger, metrics)
	jobs := jobdesc.New(gen.jobs)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)

	api := httpapi.New(httpapi.Deps{
		Config:     cfg,
		Mode:       m,
		Bias:       analyzer,
		Jobs:       jobs,
		Translator: translator,
		Local:      []httpapi.LocalModel{gen.bias, gen.jobs},
		Recognizer: voice.capturer,
		Speaker:    voice.speaker,
		History:    recorder,
		Sessions:   sessions,
		Metrics:    metrics,
		Logger:     logger,
	})

	return &BuildResult{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics,
		Mode:       m,
		Bias:       analyzer,
		Jobs:       jobs,
		Translator: translator,
		Capturer:   voice.capturer,
		Speaker:    voice.speaker,
		History:    recorder,
		Sessions:   sessions,
		API:        api,
		Backends:   gen.detail,
		Voice:      voice.detail,
		Cleanup:    runCleanup,
	}, nil
}

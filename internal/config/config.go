package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the neutralize service and CLI.
type Config struct {
	BindAddr         string        `yaml:"bind_addr"`
	ShutdownTimeout  time.Duration `yaml:"-"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	LogLevel         string        `yaml:"log_level"`

	GoogleAPIKey   string `yaml:"-"`
	RemoteProvider string `yaml:"remote_provider"`
	GeminiModel    string `yaml:"gemini_model"`
	OpenAIAPIKey   string `yaml:"-"`
	OpenAIModel    string `yaml:"openai_model"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`

	ProbeAddr    string        `yaml:"probe_addr"`
	ProbeTimeout time.Duration `yaml:"-"`

	LocalBackend     string `yaml:"local_backend"`
	LocalModelPath   string `yaml:"local_model_path"`
	LocalLlamaServer string `yaml:"local_llama_server"`
	LocalLlamaURL    string `yaml:"local_llama_url"`
	LocalContextSize int    `yaml:"local_context_size"`
	JobDescCtxSize   int    `yaml:"jobdesc_context_size"`
	LocalThreads     int    `yaml:"local_threads"`
	LocalMlock       bool   `yaml:"local_mlock"`
	LocalF16KV       bool   `yaml:"local_f16_kv"`
	OllamaURL        string `yaml:"ollama_url"`
	OllamaModel      string `yaml:"ollama_model"`

	BiasMaxTokens      int     `yaml:"bias_max_tokens"`
	BiasTemperature    float64 `yaml:"bias_temperature"`
	JobDescMaxTokens   int     `yaml:"jobdesc_max_tokens"`
	JobDescTemperature float64 `yaml:"jobdesc_temperature"`

	LocalWhisperCLI       string `yaml:"local_whisper_cli"`
	LocalWhisperModelPath string `yaml:"local_whisper_model_path"`
	LocalWhisperThreads   int    `yaml:"local_whisper_threads"`

	CaptureTimeout     time.Duration `yaml:"-"`
	CapturePhraseLimit time.Duration `yaml:"-"`
	CaptureSampleRate  int           `yaml:"capture_sample_rate"`

	TTSPlayer        string        `yaml:"tts_player"`
	TTSPacingPerChar time.Duration `yaml:"-"`
	LocalTTSCLI      string        `yaml:"local_tts_cli"`

	Participant1Language string `yaml:"participant1_language"`
	Participant2Language string `yaml:"participant2_language"`

	SessionInactivityTimeout time.Duration `yaml:"-"`
	AllowAnyOrigin           bool          `yaml:"allow_any_origin"`

	DatabaseURL string `yaml:"-"`
	CacheDir    string        `yaml:"cache_dir"`
	CacheTTL    time.Duration `yaml:"-"`
}

// Defaults returns the configuration used when neither a file nor the environment overrides a value.
func Defaults() Config {
	return Config{
		BindAddr:         ":8000",
		ShutdownTimeout:  15 * time.Second,
		MetricsNamespace: "neutralize",
		LogLevel:         "info",

		RemoteProvider: "gemini",
		GeminiModel:    "gemini-pro",
		OpenAIModel:    "gpt-4o-mini",

		ProbeAddr:    "8.8.8.8:53",
		ProbeTimeout: 3 * time.Second,

		LocalBackend:     "llama",
		LocalModelPath:   ".models/DeepSeek-R1-Distill-Llama-8B-Q4_K_M.gguf",
		LocalLlamaServer: "llama-server",
		LocalContextSize: 2048,
		JobDescCtxSize:   4096,
		LocalThreads:     8,
		LocalMlock:       true,
		LocalF16KV:       true,
		OllamaURL:        "http://localhost:11434",
		OllamaModel:      "mistral:7b",

		BiasMaxTokens:      100,
		BiasTemperature:    0.3,
		JobDescMaxTokens:   500,
		JobDescTemperature: 0.4,

		LocalWhisperCLI:       "whisper-cli",
		LocalWhisperModelPath: ".models/whisper/ggml-base.bin",

		CaptureTimeout:     5 * time.Second,
		CapturePhraseLimit: 15 * time.Second,
		CaptureSampleRate:  16000,

		TTSPlayer:        defaultPlayer(),
		TTSPacingPerChar: 500 * time.Millisecond,
		LocalTTSCLI:      "espeak-ng",

		Participant1Language: "English",
		Participant2Language: "Telugu",

		SessionInactivityTimeout: 2 * time.Minute,

		CacheTTL: 7 * 24 * time.Hour,
	}
}

// Load reads the optional YAML file named by NEUTRALIZE_CONFIG, then environment variables,
// and applies safe defaults.
func Load() (Config, error) {
	cfg := Defaults()

	if path := stringsTrimSpace("NEUTRALIZE_CONFIG"); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = envOrDefault("APP_LOG_LEVEL", cfg.LogLevel)
	cfg.GoogleAPIKey = stringsTrimSpace("GOOGLE_API_KEY")
	cfg.RemoteProvider = strings.ToLower(envOrDefault("REMOTE_PROVIDER", cfg.RemoteProvider))
	cfg.GeminiModel = envOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.OpenAIAPIKey = stringsTrimSpace("OPENAI_API_KEY")
	cfg.OpenAIModel = envOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.ProbeAddr = envOrDefault("PROBE_ADDR", cfg.ProbeAddr)
	cfg.LocalBackend = strings.ToLower(envOrDefault("LOCAL_BACKEND", cfg.LocalBackend))
	cfg.LocalModelPath = envOrDefault("LOCAL_MODEL_PATH", cfg.LocalModelPath)
	cfg.LocalLlamaServer = envOrDefault("LOCAL_LLAMA_SERVER", cfg.LocalLlamaServer)
	cfg.LocalLlamaURL = envOrDefault("LOCAL_LLAMA_URL", cfg.LocalLlamaURL)
	cfg.OllamaURL = envOrDefault("OLLAMA_URL", cfg.OllamaURL)
	cfg.OllamaModel = envOrDefault("OLLAMA_MODEL", cfg.OllamaModel)
	cfg.LocalWhisperCLI = envOrDefault("LOCAL_WHISPER_CLI", cfg.LocalWhisperCLI)
	cfg.LocalWhisperModelPath = envOrDefault("LOCAL_WHISPER_MODEL_PATH", cfg.LocalWhisperModelPath)
	cfg.TTSPlayer = envOrDefault("TTS_PLAYER", cfg.TTSPlayer)
	cfg.LocalTTSCLI = envOrDefault("LOCAL_TTS_CLI", cfg.LocalTTSCLI)
	cfg.Participant1Language = envOrDefault("INTERPRETER_LANGUAGE_1", cfg.Participant1Language)
	cfg.Participant2Language = envOrDefault("INTERPRETER_LANGUAGE_2", cfg.Participant2Language)
	cfg.DatabaseURL = stringsTrimSpace("DATABASE_URL")
	cfg.CacheDir = envOrDefault("CACHE_DIR", cfg.CacheDir)

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ProbeTimeout, err = durationFromEnv("PROBE_TIMEOUT", cfg.ProbeTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CaptureTimeout, err = durationFromEnv("CAPTURE_TIMEOUT", cfg.CaptureTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CapturePhraseLimit, err = durationFromEnv("CAPTURE_PHRASE_LIMIT", cfg.CapturePhraseLimit); err != nil {
		return Config{}, err
	}
	if cfg.TTSPacingPerChar, err = durationFromEnv("TTS_PACING_PER_CHAR", cfg.TTSPacingPerChar); err != nil {
		return Config{}, err
	}
	if cfg.SessionInactivityTimeout, err = durationFromEnv("SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = durationFromEnv("CACHE_TTL", cfg.CacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.LocalContextSize, err = intFromEnv("LOCAL_CONTEXT_SIZE", cfg.LocalContextSize); err != nil {
		return Config{}, err
	}
	if cfg.JobDescCtxSize, err = intFromEnv("JOBDESC_CONTEXT_SIZE", cfg.JobDescCtxSize); err != nil {
		return Config{}, err
	}
	if cfg.LocalThreads, err = intFromEnv("LOCAL_THREADS", cfg.LocalThreads); err != nil {
		return Config{}, err
	}
	if cfg.LocalWhisperThreads, err = intFromEnv("LOCAL_WHISPER_THREADS", cfg.LocalWhisperThreads); err != nil {
		return Config{}, err
	}
	if cfg.CaptureSampleRate, err = intFromEnv("CAPTURE_SAMPLE_RATE", cfg.CaptureSampleRate); err != nil {
		return Config{}, err
	}
	if cfg.BiasMaxTokens, err = intFromEnv("BIAS_MAX_TOKENS", cfg.BiasMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.JobDescMaxTokens, err = intFromEnv("JOBDESC_MAX_TOKENS", cfg.JobDescMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.BiasTemperature, err = floatFromEnv("BIAS_TEMPERATURE", cfg.BiasTemperature); err != nil {
		return Config{}, err
	}
	if cfg.JobDescTemperature, err = floatFromEnv("JOBDESC_TEMPERATURE", cfg.JobDescTemperature); err != nil {
		return Config{}, err
	}
	if cfg.LocalMlock, err = boolFromEnv("LOCAL_MLOCK", cfg.LocalMlock); err != nil {
		return Config{}, err
	}
	if cfg.LocalF16KV, err = boolFromEnv("LOCAL_F16_KV", cfg.LocalF16KV); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that would otherwise fail deep inside a backend.
func (c Config) Validate() error {
	switch c.RemoteProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("REMOTE_PROVIDER must be gemini or openai, got %q", c.RemoteProvider)
	}
	switch c.LocalBackend {
	case "llama", "ollama", "mock", "none":
	default:
		return fmt.Errorf("LOCAL_BACKEND must be llama, ollama, mock or none, got %q", c.LocalBackend)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("PROBE_TIMEOUT must be positive")
	}
	if c.LocalContextSize <= 0 || c.JobDescCtxSize <= 0 {
		return fmt.Errorf("LOCAL_CONTEXT_SIZE and JOBDESC_CONTEXT_SIZE must be positive")
	}
	if c.LocalThreads < 0 {
		return fmt.Errorf("LOCAL_THREADS must be >= 0")
	}
	if c.BiasMaxTokens <= 0 || c.JobDescMaxTokens <= 0 {
		return fmt.Errorf("max token settings must be positive")
	}
	if c.BiasTemperature < 0 || c.BiasTemperature > 1 || c.JobDescTemperature < 0 || c.JobDescTemperature > 1 {
		return fmt.Errorf("temperature settings must be within [0, 1]")
	}
	if c.CaptureTimeout <= 0 {
		return fmt.Errorf("CAPTURE_TIMEOUT must be positive")
	}
	if c.CaptureSampleRate <= 0 {
		return fmt.Errorf("CAPTURE_SAMPLE_RATE must be positive")
	}
	if c.TTSPacingPerChar < 0 {
		return fmt.Errorf("TTS_PACING_PER_CHAR must be >= 0")
	}
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	return nil
}

// fileConfig mirrors Config for YAML decoding; durations are written as strings ("3s").
type fileConfig struct {
	Config           `yaml:",inline"`
	ShutdownTimeout  string `yaml:"shutdown_timeout"`
	ProbeTimeout     string `yaml:"probe_timeout"`
	CaptureTimeout   string `yaml:"capture_timeout"`
	CapturePhrase    string `yaml:"capture_phrase_limit"`
	TTSPacingPerChar string `yaml:"tts_pacing_per_char"`
	SessionTimeout   string `yaml:"session_inactivity_timeout"`
	CacheTTL         string `yaml:"cache_ttl"`
}

func overlayFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	fc := fileConfig{Config: *cfg}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := fc.Config
	durations := []struct {
		raw string
		dst *time.Duration
		def time.Duration
		key string
	}{
		{fc.ShutdownTimeout, &out.ShutdownTimeout, cfg.ShutdownTimeout, "shutdown_timeout"},
		{fc.ProbeTimeout, &out.ProbeTimeout, cfg.ProbeTimeout, "probe_timeout"},
		{fc.CaptureTimeout, &out.CaptureTimeout, cfg.CaptureTimeout, "capture_timeout"},
		{fc.CapturePhrase, &out.CapturePhraseLimit, cfg.CapturePhraseLimit, "capture_phrase_limit"},
		{fc.TTSPacingPerChar, &out.TTSPacingPerChar, cfg.TTSPacingPerChar, "tts_pacing_per_char"},
		{fc.SessionTimeout, &out.SessionInactivityTimeout, cfg.SessionInactivityTimeout, "session_inactivity_timeout"},
		{fc.CacheTTL, &out.CacheTTL, cfg.CacheTTL, "cache_ttl"},
	}
	for _, d := range durations {
		*d.dst = d.def
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("%s parse error: %w", d.key, err)
		}
		*d.dst = v
	}
	*cfg = out
	return nil
}

func defaultPlayer() string {
	if v := os.Getenv("TTS_PLAYER"); v != "" {
		return v
	}
	return "ffplay -nodisp -autoexit -loglevel quiet"
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

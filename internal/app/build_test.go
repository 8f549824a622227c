package app

import (
	"context"
	"testing"

	"github.com/ent0n29/neutralize/internal/bias"
	"github.com/ent0n29/neutralize/internal/config"
	"github.com/ent0n29/neutralize/internal/jobdesc"
	"github.com/ent0n29/neutralize/internal/translate"
)

func offlineConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.GoogleAPIKey = ""
	cfg.OpenAIAPIKey = ""
	cfg.LocalBackend = "mock"
	cfg.LocalWhisperCLI = "missing-whisper-cli"
	cfg.LocalTTSCLI = "missing-tts-cli"
	cfg.CacheDir = ""
	cfg.DatabaseURL = ""
	return cfg
}

func TestBuildOfflineWithMockModel(t *testing.T) {
	res, err := Build(context.Background(), offlineConfig(t), nil, Options{SkipProbe: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if res.Mode.Online() {
		t.Fatalf("Online() = true, want false")
	}
	if res.Backends != "remote=none local=mock" {
		t.Fatalf("Backends = %q", res.Backends)
	}
	if res.Voice != "recognize=none synthesize=none" {
		t.Fatalf("Voice = %q", res.Voice)
	}

	label, err := res.Bias.Detect(context.Background(), "The chairman said he would decide.")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if label != bias.LabelYes {
		t.Fatalf("Detect() = %q, want %q", label, bias.LabelYes)
	}

	out, err := res.Translator.Translate(context.Background(), translate.Request{Text: "Hello", Source: "en", Target: "ja"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if out.Backend != "llm" || out.Text != "Hello" {
		t.Fatalf("unexpected translation: %+v", out)
	}
}

func TestBuildWithoutLocalModelStillStarts(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.LocalBackend = "llama"
	cfg.LocalLlamaURL = ""
	cfg.LocalModelPath = t.TempDir() + "/missing.gguf"

	res, err := Build(context.Background(), cfg, nil, Options{SkipProbe: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if res.Backends != "remote=none local=none" {
		t.Fatalf("Backends = %q", res.Backends)
	}
	if _, err := res.Jobs.Describe(context.Background(), jobdesc.Request{Title: "Nurse"}); err == nil {
		t.Fatalf("Describe() error = nil, want no backend error")
	}
}

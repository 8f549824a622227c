package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func offlineEnv(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"NEUTRALIZE_CONFIG": "",
		"GOOGLE_API_KEY":    "",
		"OPENAI_API_KEY":    "",
		"DATABASE_URL":      "",
		"CACHE_DIR":         "",
		"LOCAL_BACKEND":     "mock",
		"LOCAL_WHISPER_CLI": "missing-whisper-cli",
		"LOCAL_TTS_CLI":     "missing-tts-cli",
		"APP_LOG_LEVEL":     "error",
	} {
		t.Setenv(k, v)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--offline"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	offlineEnv(t)
	out, err := run(t, "analyze", "The", "chairman", "said", "he", "would", "decide.")
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	for _, want := range []string{
		"Bias detected: Yes",
		"Bias score: 70%",
		"Gender-neutral version: The chairperson said they would decide.",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeRejectsEmptySentence(t *testing.T) {
	offlineEnv(t)
	if _, err := run(t, "analyze"); err == nil {
		t.Fatalf("analyze without a sentence error = nil")
	}
}

func TestJobdescCommandValidatesRange(t *testing.T) {
	offlineEnv(t)
	out, err := run(t, "jobdesc", "Data", "Analyst")
	if err != nil {
		t.Fatalf("jobdesc error = %v", err)
	}
	if !strings.Contains(out, "Job Title: Data Analyst") {
		t.Fatalf("unexpected job description:\n%s", out)
	}
	if _, err := run(t, "jobdesc", "--max-tokens", "50", "Data Analyst"); err == nil {
		t.Fatalf("jobdesc --max-tokens 50 error = nil, want range error")
	}
	if _, err := run(t, "jobdesc", "--temperature", "0", "Nurse"); err != nil {
		t.Fatalf("jobdesc --temperature 0 error = %v", err)
	}
	if _, err := run(t, "jobdesc", "--temperature", "1.5", "Nurse"); err == nil {
		t.Fatalf("jobdesc --temperature 1.5 error = nil, want range error")
	}
	help := newRootCmd()
	jd, _, err := help.Find([]string{"jobdesc"})
	if err != nil {
		t.Fatalf("Find(jobdesc) error = %v", err)
	}
	if usage := jd.Flags().Lookup("temperature").Usage; !strings.Contains(usage, "0.0-1.0") {
		t.Fatalf("temperature usage = %q, want the 0.0-1.0 range", usage)
	}
}

func TestTranslateRequiresTarget(t *testing.T) {
	offlineEnv(t)
	if _, err := run(t, "translate", "hello"); err == nil {
		t.Fatalf("translate without --to error = nil")
	}
	out, err := run(t, "translate", "--from", "en", "--to", "kn", "hello")
	if err != nil {
		t.Fatalf("translate error = %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Fatalf("translate output = %q", out)
	}
}

func TestModeCommandReportsOffline(t *testing.T) {
	offlineEnv(t)
	out, err := run(t, "mode")
	if err != nil {
		t.Fatalf("mode error = %v", err)
	}
	if !strings.Contains(out, `"online": false`) || !strings.Contains(out, "local=mock") {
		t.Fatalf("unexpected mode output:\n%s", out)
	}
}

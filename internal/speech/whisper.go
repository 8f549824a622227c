package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/ent0n29/neutralize/internal/audio"
)

// WhisperConfig configures the whisper.cpp CLI recognizer.
type WhisperConfig struct {
	CLI       string
	ModelPath string
	Threads   int
}

// WhisperRecognizer transcribes offline by running whisper.cpp on a temporary WAV file.
type WhisperRecognizer struct {
	cliPath   string
	modelPath string
	threads   int
}

func NewWhisperRecognizer(cfg WhisperConfig) (*WhisperRecognizer, error) {
	cli := strings.TrimSpace(cfg.CLI)
	if cli == "" {
		cli = "whisper-cli"
	}
	cliPath, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp CLI not found (%s)", cli)
	}
	modelPath := strings.TrimSpace(cfg.ModelPath)
	if modelPath == "" {
		return nil, fmt.Errorf("LOCAL_WHISPER_MODEL_PATH is required")
	}
	if !filepath.IsAbs(modelPath) {
		if wd, err := os.Getwd(); err == nil {
			modelPath = filepath.Join(wd, modelPath)
		}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper.cpp model not found: %s", modelPath)
	}

	threads := cfg.Threads
	if threads < 0 {
		return nil, fmt.Errorf("LOCAL_WHISPER_THREADS must be >= 0")
	}
	if threads == 0 {
		threads = runtime.NumCPU()
		if threads > 8 {
			threads = 8
		}
		if threads < 2 {
			threads = 2
		}
	}
	return &WhisperRecognizer{cliPath: cliPath, modelPath: modelPath, threads: threads}, nil
}

func (w *WhisperRecognizer) Name() string { return "whisper" }

func (w *WhisperRecognizer) args(wavPath, outPrefix, locale string) []string {
	lang := "auto"
	if locale != "" {
		lang = strings.ToLower(strings.SplitN(locale, "-", 2)[0])
	}
	return []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-l", lang,
		"-otxt",
		"-of", outPrefix,
		"-nt",
		"-t", strconv.Itoa(w.threads),
	}
}

func (w *WhisperRecognizer) Recognize(ctx context.Context, u Utterance, locale string) (string, error) {
	if u.Empty() {
		return "", ErrNotUnderstood
	}
	tmpDir, err := os.MkdirTemp("", "neutralize-whisper-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	if err := audio.WriteWAVFile(wavPath, u.PCM, u.SampleRate); err != nil {
		return "", err
	}
	outPrefix := filepath.Join(tmpDir, "out")

	cmd := exec.CommandContext(ctx, w.cliPath, w.args(wavPath, outPrefix, locale)...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", context.Canceled
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: whisper.cpp timed out", ErrServiceUnavailable)
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 4<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(4<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("%w: whisper.cpp failed: %s", ErrServiceUnavailable, detail)
	}

	b, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	text := cleanWhisperText(string(b))
	if text == "" {
		return "", ErrNotUnderstood
	}
	return text, nil
}

// whisper.cpp marks non-speech segments with bracketed tags such as [BLANK_AUDIO] or (music).
var whisperNonSpeech = regexp.MustCompile(`\[[A-Z_ ]+\]|\((?i:music|silence|noise|inaudible|applause)\)`)

func cleanWhisperText(raw string) string {
	raw = whisperNonSpeech.ReplaceAllString(raw, " ")
	return strings.Join(strings.Fields(raw), " ")
}

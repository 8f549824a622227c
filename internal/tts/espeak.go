package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ent0n29/neutralize/internal/audio"
)

// CommandSynthesizer runs an espeak-compatible CLI (`<cli> -v <lang> -w <out.wav> <text>`) offline.
type CommandSynthesizer struct {
	cliPath string
}

func NewCommandSynthesizer(cli string) (*CommandSynthesizer, error) {
	cli = strings.TrimSpace(cli)
	if cli == "" {
		cli = "espeak-ng"
	}
	path, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("local tts CLI not found (%s)", cli)
	}
	return &CommandSynthesizer{cliPath: path}, nil
}

func (c *CommandSynthesizer) Name() string { return filepath.Base(c.cliPath) }

func commandArgs(out, text, locale string) []string {
	lang := "en"
	if locale != "" {
		lang = strings.ToLower(strings.SplitN(locale, "-", 2)[0])
	}
	return []string{"-v", lang, "-w", out, text}
}

func (c *CommandSynthesizer) Synthesize(ctx context.Context, text, locale string) (Audio, error) {
	tmpDir, err := os.MkdirTemp("", "neutralize-tts-*")
	if err != nil {
		return Audio{}, err
	}
	defer os.RemoveAll(tmpDir)

	out := filepath.Join(tmpDir, "speech.wav")
	cmd := exec.CommandContext(ctx, c.cliPath, commandArgs(out, text, locale)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Audio{}, ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return Audio{}, fmt.Errorf("%s failed: %s", c.Name(), detail)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		return Audio{}, err
	}
	if !audio.IsWAV(b) {
		return Audio{}, fmt.Errorf("%s produced no wav output", c.Name())
	}
	return Audio{Data: b, Format: "wav"}, nil
}

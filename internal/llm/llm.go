// Package llm dispatches text generation to a remote API with a local model fallback.
package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrModelClosed is returned by a local backend after Close and before Reopen.
	ErrModelClosed = errors.New("local model closed")
	// ErrNoResponse is returned when a backend completes without producing any choice.
	ErrNoResponse = errors.New("no response generated")
	// ErrNoBackend is returned when neither a remote nor a local backend is usable.
	ErrNoBackend = errors.New("no generation backend available")
)

// Local prompt suffixes appended verbatim before local dispatch.
const (
	SuffixAnswer   = "\n\n### Answer:"
	SuffixResponse = "\n\n### Response:"
	SuffixConcise  = "\n\nProvide a concise, one-sentence answer."
)

// Options are the per-call generation knobs.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Backend produces a completion for a single prompt.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// LocalBackend is a Backend whose loaded model can be released and loaded again.
type LocalBackend interface {
	Backend
	Close() error
	Reopen() error
	Closed() bool
}

// BackendFunc adapts a function to Backend.
type BackendFunc struct {
	ID string
	Fn func(ctx context.Context, prompt string, opts Options) (string, error)
}

func (b BackendFunc) Name() string { return b.ID }

func (b BackendFunc) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return b.Fn(ctx, prompt, opts)
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?(</think>|$)`)

// StripThinking removes <think>...</think> reasoning blocks emitted by distilled reasoning models.
// An unterminated block is dropped through the end of the text.
func StripThinking(text string) string {
	if !strings.Contains(text, "<think>") {
		return strings.TrimSpace(strings.ReplaceAll(text, "</think>", ""))
	}
	return strings.TrimSpace(thinkBlock.ReplaceAllString(text, ""))
}

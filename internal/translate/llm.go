package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/neutralize/internal/languages"
	"github.com/ent0n29/neutralize/internal/llm"
)

// LLMTranslator prompts the generation backend to translate; it stands in for an offline seq2seq model.
type LLMTranslator struct {
	gen  llm.Generator
	opts llm.Options
}

func NewLLMTranslator(gen llm.Generator, maxTokens int) *LLMTranslator {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	return &LLMTranslator{gen: gen, opts: llm.Options{MaxTokens: maxTokens, Temperature: 0.1}}
}

func (t *LLMTranslator) Name() string { return "llm" }

func (t *LLMTranslator) Translate(ctx context.Context, text string, src, dst languages.Language) (string, error) {
	res, err := t.gen.Generate(ctx, translatePrompt(text, src, dst), t.opts)
	if err != nil {
		return "", fmt.Errorf("llm translate: %w", err)
	}
	out := strings.Trim(strings.TrimSpace(res.Text), `"`)
	if out == "" {
		return "", fmt.Errorf("llm translate: %w", llm.ErrNoResponse)
	}
	return out, nil
}

func translatePrompt(text string, src, dst languages.Language) string {
	from := src.Name
	if from == "" {
		from = "the detected source language"
	}
	return fmt.Sprintf(`Translate the following text from %s to %s.
Respond with the translation only, in %s script, without notes or transliteration.

Text: "%s"

Translation:`, from, dst.Name, dst.Name, text)
}

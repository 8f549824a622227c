package translate

import (
	"context"
	"fmt"
	"html"
	"strings"

	gtranslate "cloud.google.com/go/translate"
	"google.golang.org/api/option"

	"github.com/ent0n29/neutralize/internal/languages"
)

// GoogleTranslator calls the Cloud Translation API.
type GoogleTranslator struct {
	client *gtranslate.Client
}

func NewGoogleTranslator(ctx context.Context, apiKey string) (*GoogleTranslator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google translate: API key is required")
	}
	client, err := gtranslate.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google translate: create client: %w", err)
	}
	return &GoogleTranslator{client: client}, nil
}

func (g *GoogleTranslator) Name() string { return "google" }

func (g *GoogleTranslator) Translate(ctx context.Context, text string, src, dst languages.Language) (string, error) {
	opts := &gtranslate.Options{Format: gtranslate.Text}
	if src.Code != "" {
		opts.Source = src.Tag
	}
	resp, err := g.client.Translate(ctx, []string{text}, dst.Tag, opts)
	if err != nil {
		return "", fmt.Errorf("google translate: %w", err)
	}
	if len(resp) == 0 {
		return "", fmt.Errorf("google translate: empty response")
	}
	return html.UnescapeString(resp[0].Text), nil
}

func (g *GoogleTranslator) Close() error {
	return g.client.Close()
}

package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

// GoogleSynthesizer calls Cloud Text-to-Speech and returns MP3 audio.
type GoogleSynthesizer struct {
	client *texttospeech.Client
}

func NewGoogleSynthesizer(ctx context.Context, apiKey string) (*GoogleSynthesizer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google tts: API key is required")
	}
	client, err := texttospeech.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google tts: create client: %w", err)
	}
	return &GoogleSynthesizer{client: client}, nil
}

func (g *GoogleSynthesizer) Name() string { return "google" }

func (g *GoogleSynthesizer) Synthesize(ctx context.Context, text, locale string) (Audio, error) {
	if locale == "" {
		locale = "en-US"
	}
	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: locale,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_NEUTRAL,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return Audio{}, fmt.Errorf("google tts: synthesize: %w", err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return Audio{}, fmt.Errorf("google tts: empty audio")
	}
	return Audio{Data: resp.GetAudioContent(), Format: "mp3"}, nil
}

func (g *GoogleSynthesizer) Close() error {
	return g.client.Close()
}

package speech

import (
	"context"
	"fmt"
	"strings"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GoogleRecognizer calls the Cloud Speech-to-Text synchronous Recognize API.
type GoogleRecognizer struct {
	client *gspeech.Client
}

func NewGoogleRecognizer(ctx context.Context, apiKey string) (*GoogleRecognizer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google speech: API key is required")
	}
	client, err := gspeech.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google speech: create client: %w", err)
	}
	return &GoogleRecognizer{client: client}, nil
}

func (g *GoogleRecognizer) Name() string { return "google" }

func (g *GoogleRecognizer) Recognize(ctx context.Context, u Utterance, locale string) (string, error) {
	if u.Empty() {
		return "", ErrNotUnderstood
	}
	if locale == "" {
		locale = "en-US"
	}
	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(u.SampleRate),
			LanguageCode:    locale,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: u.PCM},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if st, ok := status.FromError(err); ok && st.Code() == codes.InvalidArgument {
			return "", fmt.Errorf("%w: %v", ErrNotUnderstood, err)
		}
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", ErrNotUnderstood
	}
	return strings.Join(parts, " "), nil
}

func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}

package interpreter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/neutralize/internal/speech"
	"github.com/ent0n29/neutralize/internal/tts"
)

// MicListener captures from the local microphone; both participants share it.
type MicListener struct {
	Capturer *speech.Capturer
}

func (l MicListener) Listen(ctx context.Context, _ int, locale string) (string, error) {
	return l.Capturer.Capture(ctx, locale)
}

// SpeakerOutput speaks the translation on the local audio device.
type SpeakerOutput struct {
	Speaker *tts.Speaker
}

func (o SpeakerOutput) Deliver(ctx context.Context, turn Turn) error {
	return o.Speaker.Speak(ctx, turn.Translation, turn.Target.Locale)
}

// OutputFunc adapts a function to Output.
type OutputFunc func(ctx context.Context, turn Turn) error

func (f OutputFunc) Deliver(ctx context.Context, turn Turn) error { return f(ctx, turn) }

var (
	ErrQueueFull          = errors.New("utterance queue is full")
	ErrInvalidParticipant = errors.New("participant must be 1 or 2")
)

// StreamListener receives utterances pushed by a remote client, one queue per
// participant, and recognizes them when the loop reaches that participant's turn.
type StreamListener struct {
	recognizer *speech.Capturer
	queues     [2]chan speech.Utterance
}

func NewStreamListener(recognizer *speech.Capturer, depth int) *StreamListener {
	if depth <= 0 {
		depth = 4
	}
	return &StreamListener{
		recognizer: recognizer,
		queues:     [2]chan speech.Utterance{make(chan speech.Utterance, depth), make(chan speech.Utterance, depth)},
	}
}

// Push queues a committed utterance for participant 1 or 2.
func (l *StreamListener) Push(participant int, u speech.Utterance) error {
	if participant != 1 && participant != 2 {
		return ErrInvalidParticipant
	}
	select {
	case l.queues[participant-1] <- u:
		return nil
	default:
		return fmt.Errorf("participant %d: %w", participant, ErrQueueFull)
	}
}

func (l *StreamListener) Listen(ctx context.Context, participant int, locale string) (string, error) {
	if participant != 1 && participant != 2 {
		return "", ErrInvalidParticipant
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case u := <-l.queues[participant-1]:
		return l.recognizer.Recognize(ctx, u, locale)
	}
}

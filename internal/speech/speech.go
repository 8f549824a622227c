// Package speech captures microphone audio and turns it into text.
package speech

import (
	"context"
	"errors"
)

var (
	// ErrNotUnderstood means audio was received but no words could be recognized.
	ErrNotUnderstood = errors.New("could not understand audio")
	// ErrServiceUnavailable means no recognizer could be reached.
	ErrServiceUnavailable = errors.New("speech recognition service unavailable")
	// ErrNoMicrophone is returned when the binary was built without audio input support.
	ErrNoMicrophone = errors.New("microphone capture not available in this build")
)

// User-facing outcome messages.
const (
	MessageNotUnderstood = "Could not understand audio. Try again."
	MessageUnavailable   = "Speech recognition service unavailable."
	// MessageUnrecognized is the interpreter's placeholder for a failed turn; it is still translated and spoken.
	MessageUnrecognized = "❌ Could not recognize speech"
)

// Utterance is one phrase of PCM16LE mono audio.
type Utterance struct {
	PCM        []byte
	SampleRate int
}

func (u Utterance) Empty() bool { return len(u.PCM) == 0 }

// Recognizer decodes an utterance in the given locale (e.g. "te-IN").
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, u Utterance, locale string) (string, error)
}

// Message maps a capture outcome to the text shown to the user.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotUnderstood):
		return MessageNotUnderstood
	default:
		return MessageUnavailable
	}
}

// Outcome is a metric label for a recognition result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "recognized"
	case errors.Is(err, ErrNotUnderstood):
		return "not_understood"
	default:
		return "unavailable"
	}
}

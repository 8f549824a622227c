// Package protocol defines the interpreter websocket messages.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientControl    MessageType = "client_control"
	TypeSpeechRecognized MessageType = "speech_recognized"
	TypeTranslation      MessageType = "translation"
	TypeSynthesizedAudio MessageType = "synthesized_audio"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

// Client control actions.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientAudioChunk carries PCM16LE mono audio from one participant. Chunks are
// buffered until one arrives with Commit set, which closes the utterance.
type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Speaker     int         `json:"speaker"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	Commit      bool        `json:"commit,omitempty"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Reason    string      `json:"reason,omitempty"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type SpeechRecognized struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	Turn         int         `json:"turn"`
	Speaker      int         `json:"speaker"`
	Language     string      `json:"language"`
	Text         string      `json:"text"`
	Unrecognized bool        `json:"unrecognized,omitempty"`
}

type Translation struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Turn      int         `json:"turn"`
	Speaker   int         `json:"speaker"`
	Source    string      `json:"source"`
	Target    string      `json:"target"`
	Text      string      `json:"text"`
	Backend   string      `json:"backend,omitempty"`
}

type SynthesizedAudio struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Turn        int         `json:"turn"`
	Speaker     int         `json:"speaker"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
	// PacingMS is the estimated speaking time; the next turn is not started before it elapses.
	PacingMS int64 `json:"pacing_ms"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// Sample rates accepted on client_audio_chunk.
const (
	MinSampleRate = 8000
	MaxSampleRate = 48000
)

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.SampleRate <= 0 || (msg.PCM16Base64 == "" && !msg.Commit) {
			return nil, errors.New("invalid client_audio_chunk")
		}
		if msg.Speaker != 1 && msg.Speaker != 2 {
			return nil, errors.New("invalid client_audio_chunk: speaker must be 1 or 2")
		}
		if msg.SampleRate < MinSampleRate || msg.SampleRate > MaxSampleRate {
			return nil, fmt.Errorf("invalid client_audio_chunk: sample_rate %d outside %d-%d", msg.SampleRate, MinSampleRate, MaxSampleRate)
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_control")
		}
		switch msg.Action {
		case ActionStart, ActionStop:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

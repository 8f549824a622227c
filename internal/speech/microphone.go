package speech

import "context"

// Microphone yields fixed-size frames of PCM16LE mono audio.
type Microphone interface {
	SampleRate() int
	Start() error
	// ReadFrame blocks until one frame is available.
	ReadFrame(ctx context.Context) ([]byte, error)
	Stop() error
	Close() error
}

// MicrophoneConfig configures the default input device.
type MicrophoneConfig struct {
	SampleRate  int
	FrameLength int
}

func (c MicrophoneConfig) withDefaults() MicrophoneConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameLength <= 0 {
		// 30ms frames.
		c.FrameLength = c.SampleRate * 30 / 1000
	}
	return c
}

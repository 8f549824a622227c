//go:build portaudio

package speech

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// portAudioMicrophone reads the default input device through PortAudio.
type portAudioMicrophone struct {
	mu     sync.Mutex
	buf    []int16
	rate   int
	stream *portaudio.Stream
}

// OpenDefaultMicrophone initializes PortAudio and opens the default input device.
func OpenDefaultMicrophone(cfg MicrophoneConfig) (Microphone, error) {
	cfg = cfg.withDefaults()
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initializing portaudio failed: %w", err)
	}
	m := &portAudioMicrophone{
		buf:  make([]int16, cfg.FrameLength),
		rate: cfg.SampleRate,
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(m.buf), m.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: opening default stream failed: %w", err)
	}
	m.stream = stream
	return m, nil
}

func (m *portAudioMicrophone) SampleRate() int { return m.rate }

func (m *portAudioMicrophone) Start() error {
	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: starting stream failed: %w", err)
	}
	return nil
}

func (m *portAudioMicrophone) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.stream.Read(); err != nil && err != portaudio.InputOverflowed {
		return nil, fmt.Errorf("portaudio: reading from stream failed: %w", err)
	}
	out := make([]byte, 2*len(m.buf))
	for i, v := range m.buf {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out, nil
}

func (m *portAudioMicrophone) Stop() error {
	if err := m.stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: stopping stream failed: %w", err)
	}
	return nil
}

func (m *portAudioMicrophone) Close() error {
	err := m.stream.Close()
	if terr := portaudio.Terminate(); err == nil && terr != nil {
		err = terr
	}
	if err != nil {
		return fmt.Errorf("portaudio: closing stream failed: %w", err)
	}
	return nil
}

// Package audio converts between raw PCM16LE mono buffers and WAV containers.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	DefaultSampleRate = 16000
	bitDepth          = 16
	numChannels       = 1
	formatPCM         = 1
)

var ErrInvalidWAV = errors.New("invalid wav data")

// EncodeWAV wraps raw PCM16LE mono audio in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	ws := &memWriteSeeker{}
	if err := writeWAV(ws, pcm, sampleRate); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// WriteWAVFile writes raw PCM16LE mono audio as a WAV file.
func WriteWAVFile(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeWAV(f, pcm, sampleRate); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeWAV(w io.WriteSeeker, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	e := wav.NewEncoder(w, sampleRate, bitDepth, numChannels, formatPCM)
	if err := e.Write(&goaudio.IntBuffer{
		Data: PCMToInts(pcm),
		Format: &goaudio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: bitDepth,
	}); err != nil {
		_ = e.Close()
		return fmt.Errorf("writing wav samples failed: %w", err)
	}
	if err := e.Close(); err != nil {
		return fmt.Errorf("closing wav encoder failed: %w", err)
	}
	return nil
}

// DecodeWAV returns PCM16LE mono samples and the sample rate of a WAV file.
// Multi-channel input keeps the first channel; other bit depths are rescaled to 16 bits.
func DecodeWAV(data []byte) ([]byte, int, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, 0, ErrInvalidWAV
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	channels := int(d.NumChans)
	if channels <= 0 {
		channels = 1
	}
	shift := int(d.BitDepth) - bitDepth

	samples := make([]int, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		v := buf.Data[i]
		switch {
		case d.BitDepth == 8:
			// 8-bit WAV is unsigned.
			v = (v - 128) << 8
		case shift > 0:
			v >>= shift
		}
		samples = append(samples, v)
	}
	return IntsToPCM(samples), int(d.SampleRate), nil
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// PCMToInts converts PCM16LE bytes to samples. A trailing odd byte is ignored.
func PCMToInts(pcm []byte) []int {
	out := make([]int, len(pcm)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return out
}

// IntsToPCM converts samples to PCM16LE bytes, clamping to the int16 range.
func IntsToPCM(samples []int) []byte {
	out := make([]byte, 2*len(samples))
	for i, v := range samples {
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}

// RMS returns the root mean square level of PCM16LE audio, normalized to [0, 1].
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Duration returns the playback length of PCM16LE mono audio.
func Duration(pcmBytes, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(pcmBytes/2) / float64(sampleRate)
}

// memWriteSeeker is an in-memory io.WriteSeeker for the wav encoder, which patches header sizes on Close.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative position %d", next)
	}
	m.pos = int(next)
	return next, nil
}

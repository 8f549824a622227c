package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ent0n29/neutralize/internal/audio"
)

// ErrListenTimeout means no speech started before the start timeout elapsed.
var ErrListenTimeout = errors.New("listening timed out while waiting for phrase to start")

// ListenConfig tunes the energy-based phrase detector. Times are measured in
// audio time, not wall-clock time.
type ListenConfig struct {
	StartTimeout   time.Duration
	PauseThreshold time.Duration
	PhraseLimit    time.Duration
	// EnergyThreshold is the normalized RMS level above which a frame counts as speech.
	EnergyThreshold float64
	// DynamicEnergy adapts the threshold to ambient noise while waiting for speech.
	DynamicEnergy bool
	PreRoll       time.Duration
}

func DefaultListenConfig() ListenConfig {
	return ListenConfig{
		StartTimeout:    5 * time.Second,
		PauseThreshold:  800 * time.Millisecond,
		PhraseLimit:     15 * time.Second,
		EnergyThreshold: 0.01,
		DynamicEnergy:   true,
		PreRoll:         300 * time.Millisecond,
	}
}

func (c ListenConfig) withDefaults() ListenConfig {
	d := DefaultListenConfig()
	if c.StartTimeout <= 0 {
		c.StartTimeout = d.StartTimeout
	}
	if c.PauseThreshold <= 0 {
		c.PauseThreshold = d.PauseThreshold
	}
	if c.PhraseLimit <= 0 {
		c.PhraseLimit = d.PhraseLimit
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = d.EnergyThreshold
	}
	if c.PreRoll < 0 {
		c.PreRoll = 0
	}
	return c
}

// Listen reads frames from an already started microphone until one phrase is
// complete: speech followed by PauseThreshold of silence, or PhraseLimit of audio.
func Listen(ctx context.Context, mic Microphone, cfg ListenConfig) (Utterance, error) {
	cfg = cfg.withDefaults()
	rate := mic.SampleRate()
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	bytesFor := func(d time.Duration) int {
		return int(d.Seconds()*float64(rate)) * 2
	}

	threshold := cfg.EnergyThreshold
	var (
		preRoll   []byte
		phrase    []byte
		waited    time.Duration
		silence   time.Duration
		speaking  bool
		preRollSz = bytesFor(cfg.PreRoll)
	)

	for {
		frame, err := mic.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Utterance{}, ctx.Err()
			}
			return Utterance{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		if len(frame) == 0 {
			continue
		}
		frameDur := time.Duration(audio.Duration(len(frame), rate) * float64(time.Second))
		level := audio.RMS(frame)

		if !speaking {
			waited += frameDur
			if level < threshold {
				if cfg.DynamicEnergy {
					// Exponential moving average towards 1.5x ambient level.
					threshold = 0.85*threshold + 0.15*level*1.5
					if threshold < cfg.EnergyThreshold/4 {
						threshold = cfg.EnergyThreshold / 4
					}
				}
				preRoll = append(preRoll, frame...)
				if len(preRoll) > preRollSz {
					preRoll = preRoll[len(preRoll)-preRollSz:]
				}
				if waited >= cfg.StartTimeout {
					return Utterance{}, fmt.Errorf("%w: %w", ErrNotUnderstood, ErrListenTimeout)
				}
				continue
			}
			speaking = true
			phrase = append(phrase, preRoll...)
			preRoll = nil
		}

		phrase = append(phrase, frame...)
		if level < threshold {
			silence += frameDur
		} else {
			silence = 0
		}
		if silence >= cfg.PauseThreshold || len(phrase) >= bytesFor(cfg.PhraseLimit) {
			return Utterance{PCM: phrase, SampleRate: rate}, nil
		}
	}
}

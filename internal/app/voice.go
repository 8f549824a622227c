package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/config"
	"github.com/ent0n29/neutralize/internal/mode"
	"github.com/ent0n29/neutralize/internal/observability"
	"github.com/ent0n29/neutralize/internal/speech"
	"github.com/ent0n29/neutralize/internal/tts"
)

type voiceSetup struct {
	capturer *speech.Capturer
	speaker  *tts.Speaker
	detail   string
	cleanup  []func() error
}

// resolveVoice wires recognition and synthesis. The online halves need the Google key;
// the offline halves need whisper.cpp and espeak-ng on PATH. Missing pieces are logged
// and leave that half empty, so the failover reports unavailable instead of failing startup.
func resolveVoice(ctx context.Context, cfg config.Config, m *mode.Mode, withMic bool, metrics *observability.Metrics, logger *zap.Logger) (voiceSetup, error) {
	var (
		setup                     voiceSetup
		onlineRec, offlineRec     speech.Recognizer
		onlineSynth, offlineSynth tts.Synthesizer
		recDetail, synthDetail    []string
		googleDisabled            bool
	)

	if strings.TrimSpace(cfg.GoogleAPIKey) != "" {
		rec, err := speech.NewGoogleRecognizer(ctx, cfg.GoogleAPIKey)
		if err != nil {
			logger.Warn("google speech recognizer unavailable", zap.Error(err))
			googleDisabled = true
		} else {
			onlineRec = rec
			recDetail = append(recDetail, rec.Name())
			setup.cleanup = append(setup.cleanup, rec.Close)
		}

		synth, err := tts.NewGoogleSynthesizer(ctx, cfg.GoogleAPIKey)
		if err != nil {
			logger.Warn("google speech synthesizer unavailable", zap.Error(err))
			googleDisabled = true
		} else {
			onlineSynth = synth
			synthDetail = append(synthDetail, synth.Name())
			setup.cleanup = append(setup.cleanup, synth.Close)
		}
	}
	if googleDisabled && onlineRec == nil && onlineSynth == nil {
		m.Disable("google cloud clients could not be created")
	}

	if whisper, err := speech.NewWhisperRecognizer(speech.WhisperConfig{
		CLI:       cfg.LocalWhisperCLI,
		ModelPath: cfg.LocalWhisperModelPath,
		Threads:   cfg.LocalWhisperThreads,
	}); err != nil {
		logger.Info("offline speech recognizer unavailable", zap.Error(err))
	} else {
		offlineRec = whisper
		recDetail = append(recDetail, whisper.Name())
	}

	if espeak, err := tts.NewCommandSynthesizer(cfg.LocalTTSCLI); err != nil {
		logger.Info("offline speech synthesizer unavailable", zap.Error(err))
	} else {
		offlineSynth = espeak
		synthDetail = append(synthDetail, espeak.Name())
	}

	var mic speech.Microphone
	if withMic {
		var err error
		mic, err = speech.OpenDefaultMicrophone(speech.MicrophoneConfig{SampleRate: cfg.CaptureSampleRate})
		if err != nil {
			if errors.Is(err, speech.ErrNoMicrophone) {
				return voiceSetup{}, err
			}
			return voiceSetup{}, fmt.Errorf("open microphone: %w", err)
		}
		setup.cleanup = append(setup.cleanup, mic.Close)
	}

	listen := speech.DefaultListenConfig()
	listen.StartTimeout = cfg.CaptureTimeout
	if cfg.CapturePhraseLimit > 0 {
		listen.PhraseLimit = cfg.CapturePhraseLimit
	}
	setup.capturer = speech.NewCapturer(
		mic,
		speech.NewFailoverRecognizer(onlineRec, offlineRec, m, logger),
		listen,
		metrics,
		logger,
	)

	var player tts.Player
	if withMic {
		// Playback only makes sense next to a local microphone; the server streams audio instead.
		if p := tts.NewCommandPlayer(cfg.TTSPlayer); p != nil {
			player = p
		}
	}
	setup.speaker = tts.NewSpeaker(
		tts.NewFailoverSynthesizer(onlineSynth, offlineSynth, m, logger),
		player,
		tts.SpeakerConfig{PacingPerChar: cfg.TTSPacingPerChar},
		metrics,
		logger,
	)

	setup.detail = fmt.Sprintf("recognize=%s synthesize=%s", joinOrNone(recDetail), joinOrNone(synthDetail))
	return setup, nil
}

func joinOrNone(parts []string) string {
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/neutralize/internal/audio"
	"github.com/ent0n29/neutralize/internal/mode"
	"github.com/ent0n29/neutralize/internal/observability"
)

const testRate = 16000

// 30ms frame at 16kHz.
const frameSamples = 480

func toneFrame(amp int) []byte {
	samples := make([]int, frameSamples)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amp
		} else {
			samples[i] = -amp
		}
	}
	return audio.IntsToPCM(samples)
}

type fakeMic struct {
	mu      sync.Mutex
	frames  [][]byte
	started int
	stopped int
	readErr error
}

func (m *fakeMic) SampleRate() int { return testRate }
func (m *fakeMic) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
	return nil
}
func (m *fakeMic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
	return nil
}
func (m *fakeMic) Close() error { return nil }

func (m *fakeMic) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.frames) == 0 {
		// Endless silence once the script runs out.
		return toneFrame(0), nil
	}
	f := m.frames[0]
	m.frames = m.frames[1:]
	return f, nil
}

func repeat(frame []byte, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = frame
	}
	return out
}

type fakeRecognizer struct {
	name  string
	text  string
	err   error
	calls int
}

func (r *fakeRecognizer) Name() string { return r.name }
func (r *fakeRecognizer) Recognize(context.Context, Utterance, string) (string, error) {
	r.calls++
	return r.text, r.err
}

func TestMessageMapping(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, MessageNotUnderstood, Message(ErrNotUnderstood))
	assert.Equal(t, MessageNotUnderstood, Message(errors.Join(ErrNotUnderstood, ErrListenTimeout)))
	assert.Equal(t, MessageUnavailable, Message(ErrServiceUnavailable))
	assert.Equal(t, MessageUnavailable, Message(errors.New("boom")))
	assert.Equal(t, "not_understood", Outcome(ErrNotUnderstood))
	assert.Equal(t, "recognized", Outcome(nil))
}

func TestListenCapturesPhraseWithPreRoll(t *testing.T) {
	var frames [][]byte
	frames = append(frames, repeat(toneFrame(0), 20)...)
	frames = append(frames, repeat(toneFrame(8000), 10)...)
	frames = append(frames, repeat(toneFrame(0), 40)...)
	mic := &fakeMic{frames: frames}

	u, err := Listen(context.Background(), mic, DefaultListenConfig())
	require.NoError(t, err)
	assert.Equal(t, testRate, u.SampleRate)

	frameBytes := frameSamples * 2
	// 300ms pre-roll is exactly 10 frames, plus speech, plus about 800ms of trailing silence.
	assert.GreaterOrEqual(t, len(u.PCM), 20*frameBytes)
	assert.LessOrEqual(t, len(u.PCM), 50*frameBytes)
}

func TestListenTimesOutWithoutSpeech(t *testing.T) {
	mic := &fakeMic{}
	cfg := DefaultListenConfig()
	cfg.StartTimeout = 300 * time.Millisecond

	_, err := Listen(context.Background(), mic, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotUnderstood)
	assert.ErrorIs(t, err, ErrListenTimeout)
}

func TestListenStopsAtPhraseLimit(t *testing.T) {
	mic := &fakeMic{frames: repeat(toneFrame(8000), 1000)}
	cfg := DefaultListenConfig()
	cfg.PhraseLimit = time.Second

	u, err := Listen(context.Background(), mic, cfg)
	require.NoError(t, err)
	got := audio.Duration(len(u.PCM), u.SampleRate)
	assert.InDelta(t, 1.0, got, 0.05)
}

func TestListenHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Listen(ctx, &fakeMic{}, DefaultListenConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListenDeviceErrorIsUnavailable(t *testing.T) {
	mic := &fakeMic{readErr: errors.New("device unplugged")}
	_, err := Listen(context.Background(), mic, DefaultListenConfig())
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestCapturerRecognizesPhrase(t *testing.T) {
	var frames [][]byte
	frames = append(frames, repeat(toneFrame(8000), 10)...)
	mic := &fakeMic{frames: frames}
	rec := &fakeRecognizer{name: "fake", text: "hello there"}
	metrics := observability.NewMetrics("test")

	c := NewCapturer(mic, rec, DefaultListenConfig(), metrics, nil)
	text, err := c.Capture(context.Background(), "en-US")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.Equal(t, 1, mic.started)
	assert.Equal(t, 1, mic.stopped)

	samples := map[string]int{}
	for _, st := range metrics.StageSnapshot().Stages {
		samples[st.Stage] = st.Samples
	}
	assert.Equal(t, 1, samples[observability.StageCapture])
	assert.Equal(t, 1, samples[observability.StageRecognize])
}

func TestCapturerEmptyTranscriptIsNotUnderstood(t *testing.T) {
	mic := &fakeMic{frames: repeat(toneFrame(8000), 5)}
	c := NewCapturer(mic, &fakeRecognizer{name: "fake"}, DefaultListenConfig(), nil, nil)
	_, err := c.Capture(context.Background(), "en-US")
	assert.ErrorIs(t, err, ErrNotUnderstood)
}

func TestCapturerWithoutMicrophone(t *testing.T) {
	c := NewCapturer(nil, &fakeRecognizer{}, DefaultListenConfig(), nil, nil)
	_, err := c.Capture(context.Background(), "en-US")
	assert.ErrorIs(t, err, ErrNoMicrophone)
}

func TestFailoverUsesOfflineWhenOnlineFails(t *testing.T) {
	online := &fakeRecognizer{name: "google", err: errors.New("503")}
	offline := &fakeRecognizer{name: "whisper", text: "namaste"}
	r := NewFailoverRecognizer(online, offline, mode.Fixed(true), nil)

	text, err := r.Recognize(context.Background(), Utterance{PCM: toneFrame(100), SampleRate: testRate}, "hi-IN")
	require.NoError(t, err)
	assert.Equal(t, "namaste", text)
	assert.Equal(t, 1, online.calls)
	assert.Equal(t, 1, offline.calls)
}

func TestFailoverKeepsNotUnderstood(t *testing.T) {
	online := &fakeRecognizer{name: "google", err: ErrNotUnderstood}
	offline := &fakeRecognizer{name: "whisper", text: "should not run"}
	r := NewFailoverRecognizer(online, offline, mode.Fixed(true), nil)

	_, err := r.Recognize(context.Background(), Utterance{PCM: toneFrame(100)}, "en-US")
	assert.ErrorIs(t, err, ErrNotUnderstood)
	assert.Equal(t, 0, offline.calls)
}

func TestFailoverOfflineModeSkipsOnline(t *testing.T) {
	online := &fakeRecognizer{name: "google", text: "online"}
	offline := &fakeRecognizer{name: "whisper", text: "offline"}
	r := NewFailoverRecognizer(online, offline, mode.Fixed(false), nil)

	text, err := r.Recognize(context.Background(), Utterance{PCM: toneFrame(100)}, "en-US")
	require.NoError(t, err)
	assert.Equal(t, "offline", text)
	assert.Equal(t, 0, online.calls)
	assert.Equal(t, "whisper", r.Name())
}

func TestFailoverWithoutOfflineIsUnavailable(t *testing.T) {
	online := &fakeRecognizer{name: "google", err: errors.New("dial tcp: timeout")}
	r := NewFailoverRecognizer(online, nil, mode.Fixed(true), nil)
	_, err := r.Recognize(context.Background(), Utterance{PCM: toneFrame(100)}, "en-US")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, MessageUnavailable, Message(err))
}

func TestCleanWhisperText(t *testing.T) {
	cases := map[string]string{
		"  hello   world \n":       "hello world",
		"[BLANK_AUDIO]":            "",
		"(music) thank you (Music)": "thank you",
		"నమస్కారం":                  "నమస్కారం",
	}
	for in, want := range cases {
		if got := cleanWhisperText(in); got != want {
			t.Fatalf("cleanWhisperText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWhisperArgsUseLocaleBase(t *testing.T) {
	w := &WhisperRecognizer{cliPath: "/bin/whisper-cli", modelPath: "/m.bin", threads: 4}
	args := strings.Join(w.args("/tmp/a.wav", "/tmp/out", "te-IN"), " ")
	assert.Contains(t, args, "-l te")
	assert.Contains(t, args, "-t 4")

	args = strings.Join(w.args("/tmp/a.wav", "/tmp/out", ""), " ")
	assert.Contains(t, args, "-l auto")
}

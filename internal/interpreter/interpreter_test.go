package interpreter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ent0n29/neutralize/internal/languages"
	"github.com/ent0n29/neutralize/internal/observability"
	"github.com/ent0n29/neutralize/internal/speech"
	"github.com/ent0n29/neutralize/internal/translate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedListener struct {
	mu     sync.Mutex
	calls  []int
	script []listenResult
}

type listenResult struct {
	text string
	err  error
}

func (l *scriptedListener) Listen(ctx context.Context, participant int, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, participant)
	if len(l.script) == 0 {
		return "", speech.ErrNotUnderstood
	}
	r := l.script[0]
	l.script = l.script[1:]
	return r.text, r.err
}

type echoTranslator struct {
	mu   sync.Mutex
	reqs []translate.Request
	err  error
}

func (e *echoTranslator) Translate(_ context.Context, req translate.Request) (translate.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	if e.err != nil {
		return translate.Result{}, e.err
	}
	return translate.Result{Text: "[" + req.Target + "] " + req.Text, Backend: "fake"}, nil
}

type recordingOutput struct {
	mu    sync.Mutex
	turns []Turn
}

func (o *recordingOutput) Deliver(_ context.Context, turn Turn) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turns = append(o.turns, turn)
	return nil
}

func englishTelugu() Config {
	return Config{
		Participant1: languages.MustLookup("English"),
		Participant2: languages.MustLookup("Telugu"),
	}
}

func TestRunTurnTranslatesAndDelivers(t *testing.T) {
	listener := &scriptedListener{script: []listenResult{{text: "good morning"}}}
	tr := &echoTranslator{}
	out := &recordingOutput{}
	in := New(listener, tr, out, englishTelugu(), observability.NewMetrics("test"), nil)

	p1, p2 := in.Participants()
	turn, err := in.RunTurn(context.Background(), 1, p1, p2)
	require.NoError(t, err)
	assert.Equal(t, "good morning", turn.Recognized)
	assert.Equal(t, "[te] good morning", turn.Translation)
	assert.Equal(t, 1, turn.Number)
	require.Len(t, tr.reqs, 1)
	assert.Equal(t, translate.Request{Text: "good morning", Source: "en", Target: "te"}, tr.reqs[0])
	require.Len(t, out.turns, 1)
	assert.Equal(t, "te-IN", out.turns[0].Target.Locale)
}

func TestRunTurnSpeaksPlaceholderWhenUnrecognized(t *testing.T) {
	listener := &scriptedListener{script: []listenResult{{err: speech.ErrServiceUnavailable}}}
	tr := &echoTranslator{}
	out := &recordingOutput{}
	in := New(listener, tr, out, englishTelugu(), nil, nil)

	p1, p2 := in.Participants()
	turn, err := in.RunTurn(context.Background(), 1, p1, p2)
	require.NoError(t, err)
	assert.True(t, turn.Unrecognized)
	assert.Equal(t, speech.MessageUnrecognized, turn.Recognized)
	assert.Equal(t, speech.MessageUnavailable, turn.Error)
	require.Len(t, out.turns, 1)
	assert.Equal(t, "[te] "+speech.MessageUnrecognized, out.turns[0].Translation)
}

func TestRunTurnTranslationFailureSkipsDelivery(t *testing.T) {
	listener := &scriptedListener{script: []listenResult{{text: "hello"}}}
	out := &recordingOutput{}
	in := New(listener, &echoTranslator{err: errors.New("offline model missing")}, out, englishTelugu(), nil, nil)

	p1, p2 := in.Participants()
	turn, err := in.RunTurn(context.Background(), 1, p1, p2)
	require.NoError(t, err)
	assert.Contains(t, turn.Error, "translation failed")
	assert.Empty(t, out.turns)
}

func TestRunAlternatesUntilStopped(t *testing.T) {
	listener := &scriptedListener{script: []listenResult{
		{text: "hello"}, {text: "namaskaram"}, {text: "how are you"},
	}}
	tr := &echoTranslator{}
	out := &recordingOutput{}
	cfg := englishTelugu()
	var in *Interpreter
	cfg.OnTurn = func(turn Turn) {
		if turn.Number == 3 {
			in.Stop()
		}
	}
	in = New(listener, tr, out, cfg, nil, nil)

	require.NoError(t, in.Run(context.Background()))
	assert.False(t, in.Active())
	assert.Equal(t, 3, in.Turns())
	assert.Equal(t, []int{1, 2, 1}, listener.calls)
	require.Len(t, tr.reqs, 3)
	assert.Equal(t, "en", tr.reqs[0].Source)
	assert.Equal(t, "te", tr.reqs[1].Source)
	assert.Equal(t, "en", tr.reqs[1].Target)
}

func TestStopDuringDeliveryKeepsTurn(t *testing.T) {
	listener := &scriptedListener{script: []listenResult{{text: "good morning"}}}
	delivering := make(chan struct{})
	release := make(chan struct{})
	out := OutputFunc(func(ctx context.Context, _ Turn) error {
		close(delivering)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	var recorded []Turn
	cfg := englishTelugu()
	cfg.OnTurn = func(turn Turn) { recorded = append(recorded, turn) }
	in := New(listener, &echoTranslator{}, out, cfg, nil, nil)

	done := make(chan error, 1)
	go func() { done <- in.Run(context.Background()) }()

	<-delivering
	in.Stop()
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop")
	}
	assert.Equal(t, 1, in.Turns())
	require.Len(t, recorded, 1)
	assert.Equal(t, "[te] good morning", recorded[0].Translation)
	assert.Equal(t, []int{1}, listener.calls)
}

func TestStopAbandonsPendingListen(t *testing.T) {
	capt := speech.NewCapturer(nil, stubRecognizer{text: "unused"}, speech.DefaultListenConfig(), nil, nil)
	in := New(NewStreamListener(capt, 1), &echoTranslator{}, nil, englishTelugu(), nil, nil)

	done := make(chan error, 1)
	go func() { done <- in.Run(context.Background()) }()
	require.Eventually(t, in.Active, time.Second, 5*time.Millisecond)
	in.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop")
	}
	assert.Equal(t, 0, in.Turns())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	in := New(NewStreamListener(speech.NewCapturer(nil, nil, speech.DefaultListenConfig(), nil, nil), 1), &echoTranslator{}, nil, englishTelugu(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	require.Eventually(t, in.Active, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, in.Run(ctx), ErrAlreadyRunning)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRunAbortsWithoutMicrophone(t *testing.T) {
	listener := &scriptedListener{script: []listenResult{{err: speech.ErrNoMicrophone}}}
	in := New(listener, &echoTranslator{}, nil, englishTelugu(), nil, nil)
	err := in.Run(context.Background())
	assert.ErrorIs(t, err, speech.ErrNoMicrophone)
}

type stubRecognizer struct{ text string }

func (s stubRecognizer) Name() string { return "stub" }
func (s stubRecognizer) Recognize(context.Context, speech.Utterance, string) (string, error) {
	return s.text, nil
}

func TestStreamListenerQueuesPerParticipant(t *testing.T) {
	capt := speech.NewCapturer(nil, stubRecognizer{text: "konnichiwa"}, speech.DefaultListenConfig(), nil, nil)
	l := NewStreamListener(capt, 1)

	require.NoError(t, l.Push(2, speech.Utterance{PCM: []byte{1, 2}, SampleRate: 16000}))
	assert.ErrorIs(t, l.Push(2, speech.Utterance{PCM: []byte{1, 2}}), ErrQueueFull)
	assert.ErrorIs(t, l.Push(3, speech.Utterance{}), ErrInvalidParticipant)

	text, err := l.Listen(context.Background(), 2, "ja-JP")
	require.NoError(t, err)
	assert.Equal(t, "konnichiwa", text)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Listen(ctx, 1, "en-US")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

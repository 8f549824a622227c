package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/neutralize/internal/mode"
	"github.com/ent0n29/neutralize/internal/observability"
)

type stubBackend struct {
	name string
	text string
	err  error

	mu      sync.Mutex
	calls   int
	prompts []string
	closed  bool
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Generate(_ context.Context, prompt string, _ Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if s.closed {
		return "", ErrModelClosed
	}
	return s.text, s.err
}

func (s *stubBackend) Close() error  { s.mu.Lock(); s.closed = true; s.mu.Unlock(); return nil }
func (s *stubBackend) Reopen() error { s.mu.Lock(); s.closed = false; s.mu.Unlock(); return nil }
func (s *stubBackend) Closed() bool  { s.mu.Lock(); defer s.mu.Unlock(); return s.closed }

func newTestRouter(online bool, remote Backend, local LocalBackend) (*Router, *observability.Metrics) {
	metrics := observability.NewMetrics("llm_test")
	return NewRouter(RouterConfig{
		Remote:      remote,
		Local:       local,
		Mode:        mode.Fixed(online),
		LocalSuffix: SuffixAnswer,
		Metrics:     metrics,
	}), metrics
}

func TestRouterOnlineUsesRemoteOnly(t *testing.T) {
	remote := &stubBackend{name: "gemini", text: "  Yes  "}
	local := &stubBackend{name: "llama", text: "No"}
	r, _ := newTestRouter(true, remote, local)

	res, err := r.Generate(context.Background(), "prompt", Options{MaxTokens: 100, Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, Result{Text: "Yes", Backend: "gemini"}, res)
	assert.Equal(t, 1, remote.calls)
	assert.Equal(t, 0, local.calls)
}

func TestRouterFallsBackWithSuffixOnRemoteError(t *testing.T) {
	remote := &stubBackend{name: "gemini", err: errors.New("quota")}
	local := &stubBackend{name: "llama", text: "<think>hmm</think>\n No "}
	r, metrics := newTestRouter(true, remote, local)

	res, err := r.Generate(context.Background(), "prompt", Options{})
	require.NoError(t, err)
	assert.Equal(t, "No", res.Text)
	assert.Equal(t, "llama", res.Backend)
	assert.True(t, res.FellBack)
	require.Len(t, local.prompts, 1)
	assert.Equal(t, "prompt"+SuffixAnswer, local.prompts[0])
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("other")))
}

func TestRouterFallsBackOnEmptyRemoteText(t *testing.T) {
	remote := &stubBackend{name: "openai", text: "   "}
	local := &stubBackend{name: "ollama", text: "local"}
	r, metrics := newTestRouter(true, remote, local)

	res, err := r.Generate(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "local", res.Text)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("empty_response")))
}

func TestRouterOfflineSkipsRemote(t *testing.T) {
	remote := &stubBackend{name: "gemini", text: "remote"}
	local := &stubBackend{name: "llama", text: "local"}
	r, _ := newTestRouter(false, remote, local)

	res, err := r.Generate(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "local", res.Text)
	assert.False(t, res.FellBack)
	assert.Equal(t, 0, remote.calls)
}

func TestRouterDoesNotFallBackOnCanceledContext(t *testing.T) {
	remote := &stubBackend{name: "gemini", err: context.Canceled}
	local := &stubBackend{name: "llama", text: "local"}
	r, _ := newTestRouter(true, remote, local)

	_, err := r.Generate(context.Background(), "p", Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, local.calls)
}

func TestRouterClosedLocalModel(t *testing.T) {
	local := &stubBackend{name: "llama", text: "local"}
	r, _ := newTestRouter(false, nil, local)

	require.NoError(t, r.CloseLocal())
	assert.True(t, r.LocalStatus().Closed)
	_, err := r.Generate(context.Background(), "p", Options{})
	require.ErrorIs(t, err, ErrModelClosed)

	require.NoError(t, r.ReopenLocal())
	res, err := r.Generate(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "local", res.Text)
}

func TestRouterCombinesErrorsWhenBothFail(t *testing.T) {
	remote := &stubBackend{name: "gemini", err: errors.New("remote down")}
	local := &stubBackend{name: "llama", err: ErrNoResponse}
	r, _ := newTestRouter(true, remote, local)

	_, err := r.Generate(context.Background(), "p", Options{})
	require.ErrorIs(t, err, ErrNoResponse)
	assert.Contains(t, err.Error(), "remote down")
}

func TestRouterWithoutAnyBackend(t *testing.T) {
	r, _ := newTestRouter(false, nil, nil)
	_, err := r.Generate(context.Background(), "p", Options{})
	require.ErrorIs(t, err, ErrNoBackend)
	assert.Equal(t, "none", r.LocalStatus().Backend)
}

func TestWithSuffixSharesBackends(t *testing.T) {
	local := &stubBackend{name: "llama", text: "ok"}
	r, _ := newTestRouter(false, nil, local)
	job := r.WithSuffix(SuffixResponse)

	_, err := job.Generate(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "p"+SuffixResponse, local.prompts[0])

	require.NoError(t, job.CloseLocal())
	assert.True(t, r.LocalStatus().Closed)
}

func TestStripThinking(t *testing.T) {
	cases := map[string]string{
		"<think>reasoning</think>Yes":       "Yes",
		"  plain  ":                         "plain",
		"<think>never closed":               "",
		"before <think>a</think> after":     "before  after",
		"stray</think> tail":                "stray tail",
		"<think>\nmulti\nline\n</think>\nNo": "No",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripThinking(in), "StripThinking(%q)", in)
	}
}

package jobdesc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/neutralize/internal/llm"
)

type recordingGenerator struct {
	prompt string
	opts   llm.Options
	text   string
	err    error
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string, opts llm.Options) (llm.Result, error) {
	g.prompt = prompt
	g.opts = opts
	return llm.Result{Text: g.text, Backend: "gemini"}, g.err
}

func TestDescribe(t *testing.T) {
	gen := &recordingGenerator{text: "\n Job Title: Nurse\n\nResponsibilities: ...\n"}
	d, err := New(gen).Describe(context.Background(), Request{Title: "  Nurse ", Temperature: DefaultTemperature})
	require.NoError(t, err)

	assert.Equal(t, "Nurse", d.Title)
	assert.Equal(t, "gemini", d.Backend)
	assert.True(t, strings.HasPrefix(d.Text, "Job Title: Nurse"))
	assert.Equal(t, llm.Options{MaxTokens: DefaultMaxTokens, Temperature: DefaultTemperature}, gen.opts)
	for _, section := range []string{"Responsibilities:", "Qualifications:", "Work Environment:", "Job Title: Nurse", "Provide only the job description"} {
		assert.Contains(t, gen.prompt, section)
	}
}

func TestDescribeValidation(t *testing.T) {
	gen := &recordingGenerator{text: "x"}
	g := New(gen)

	_, err := g.Describe(context.Background(), Request{Title: "   "})
	require.ErrorIs(t, err, ErrEmptyTitle)

	var rangeErr *RangeError
	_, err = g.Describe(context.Background(), Request{Title: "Pilot", MaxTokens: 50})
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "max_tokens", rangeErr.Field)

	_, err = g.Describe(context.Background(), Request{Title: "Pilot", MaxTokens: 701})
	require.ErrorAs(t, err, &rangeErr)

	_, err = g.Describe(context.Background(), Request{Title: "Pilot", Temperature: 1.2})
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "temperature", rangeErr.Field)

	assert.Empty(t, gen.prompt, "invalid requests must not reach the generator")

	_, err = g.Describe(context.Background(), Request{Title: "Pilot", MaxTokens: 700, Temperature: 1})
	require.NoError(t, err)
}

func TestDescribePropagatesGenerationError(t *testing.T) {
	boom := errors.New("all backends failed")
	_, err := New(&recordingGenerator{err: boom}).Describe(context.Background(), Request{Title: "Chef"})
	require.ErrorIs(t, err, boom)
}

func TestDescribeWithLocalSuffix(t *testing.T) {
	router := llm.NewRouter(llm.RouterConfig{Local: llm.NewMockBackend()}).WithSuffix(llm.SuffixResponse)
	d, err := New(router).Describe(context.Background(), Request{Title: "Firefighter", Temperature: 0.4})
	require.NoError(t, err)
	assert.Equal(t, "mock", d.Backend)
	assert.Contains(t, d.Text, "Firefighter")
	assert.Contains(t, d.Text, "Work Environment:")
}

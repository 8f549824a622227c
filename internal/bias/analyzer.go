// Package bias classifies, rewrites and scores sentences for gender bias.
package bias

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/neutralize/internal/llm"
	"github.com/ent0n29/neutralize/internal/observability"
)

const (
	LabelYes = "Yes"
	LabelNo  = "No"

	// MarkerUnexpected is the marker returned when detection output is neither yes nor no.
	MarkerUnexpected = "⚠️ Error: Unexpected model response"
	// MarkerInvalidScore is the marker returned when no percentage can be extracted.
	MarkerInvalidScore = "⚠️ Error: Invalid score format"

	NoBiasScore = "0%"

	DefaultMaxTokens   = 100
	DefaultTemperature = 0.3
)

var (
	scorePattern = regexp.MustCompile(`\b\d{1,3}(\.\d+)?%`)

	// ErrEmptySentence is returned for blank input.
	ErrEmptySentence = errors.New("sentence is required")
)

// Analysis is the combined output of Detect, Correct and Score.
type Analysis struct {
	Sentence  string `json:"sentence"`
	Biased    string `json:"biased"`
	Corrected string `json:"corrected"`
	Score     string `json:"score"`
	Backend   string `json:"backend"`
}

// Config tunes generation for all three operations.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// Analyzer runs the bias prompts through a generator.
type Analyzer struct {
	gen     llm.Generator
	opts    llm.Options
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewAnalyzer(gen llm.Generator, cfg Config, logger *zap.Logger, metrics *observability.Metrics) *Analyzer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		gen:     gen,
		opts:    llm.Options{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature},
		logger:  logger,
		metrics: metrics,
	}
}

// generate treats a backend that produced nothing as empty text so the parsers can apply their markers.
func (a *Analyzer) generate(ctx context.Context, prompt string) (llm.Result, error) {
	res, err := a.gen.Generate(ctx, prompt, a.opts)
	if errors.Is(err, llm.ErrNoResponse) {
		a.logger.Warn("generation returned no response", zap.Error(err))
		return llm.Result{}, nil
	}
	return res, err
}

// Detect returns LabelYes, LabelNo or MarkerUnexpected.
func (a *Analyzer) Detect(ctx context.Context, sentence string) (string, error) {
	label, _, err := a.detect(ctx, sentence)
	return label, err
}

func (a *Analyzer) detect(ctx context.Context, sentence string) (string, string, error) {
	if strings.TrimSpace(sentence) == "" {
		return "", "", ErrEmptySentence
	}
	res, err := a.generate(ctx, detectPrompt(sentence))
	if err != nil {
		return "", "", fmt.Errorf("detect bias: %w", err)
	}
	label := ParseLabel(res.Text)
	a.metrics.ObserveClassification(labelMetric(label))
	return label, res.Backend, nil
}

// Correct returns the trimmed gender-neutral rewrite.
func (a *Analyzer) Correct(ctx context.Context, sentence string) (string, error) {
	if strings.TrimSpace(sentence) == "" {
		return "", ErrEmptySentence
	}
	res, err := a.generate(ctx, correctPrompt(sentence))
	if err != nil {
		return "", fmt.Errorf("correct bias: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}

// Score returns "0%" when Detect says No, otherwise a percentage or MarkerInvalidScore.
func (a *Analyzer) Score(ctx context.Context, sentence string) (string, error) {
	label, _, err := a.detect(ctx, sentence)
	if err != nil {
		return "", err
	}
	return a.scoreFor(ctx, sentence, label)
}

func (a *Analyzer) scoreFor(ctx context.Context, sentence, label string) (string, error) {
	if label == LabelNo {
		return NoBiasScore, nil
	}
	res, err := a.generate(ctx, scorePrompt(sentence))
	if err != nil {
		return "", fmt.Errorf("score bias: %w", err)
	}
	return ParseScore(res.Text), nil
}

// Analyze runs detection once, then correction and scoring concurrently.
func (a *Analyzer) Analyze(ctx context.Context, sentence string) (Analysis, error) {
	label, backend, err := a.detect(ctx, sentence)
	if err != nil {
		return Analysis{}, err
	}
	out := Analysis{Sentence: sentence, Biased: label, Backend: backend}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		corrected, err := a.Correct(gctx, sentence)
		out.Corrected = corrected
		return err
	})
	g.Go(func() error {
		score, err := a.scoreFor(gctx, sentence, label)
		out.Score = score
		return err
	})
	if err := g.Wait(); err != nil {
		return Analysis{}, err
	}
	return out, nil
}

// ParseLabel normalizes the first word of a detection response.
func ParseLabel(response string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(response)))
	if len(fields) == 0 {
		return MarkerUnexpected
	}
	switch strings.Trim(fields[0], ".,!?") {
	case "yes":
		return LabelYes
	case "no":
		return LabelNo
	default:
		return MarkerUnexpected
	}
}

// ParseScore extracts the first percentage from a scoring response.
func ParseScore(response string) string {
	if m := scorePattern.FindString(strings.TrimSpace(response)); m != "" {
		return m
	}
	return MarkerInvalidScore
}

func labelMetric(label string) string {
	switch label {
	case LabelYes, LabelNo:
		return label
	default:
		return "unexpected"
	}
}

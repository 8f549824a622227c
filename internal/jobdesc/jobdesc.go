// Package jobdesc generates gender-neutral job descriptions from a job title.
package jobdesc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/neutralize/internal/llm"
)

const (
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.4

	MinMaxTokens   = 100
	MaxMaxTokens   = 700
	MinTemperature = 0.0
	MaxTemperature = 1.0
)

var ErrEmptyTitle = errors.New("please enter a job title")

// RangeError reports a generation knob outside the accepted range.
type RangeError struct {
	Field    string
	Value    float64
	Min, Max float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s must be within [%g, %g], got %g", e.Field, e.Min, e.Max, e.Value)
}

// Request is a single generation request. Zero MaxTokens selects the default;
// Temperature is taken as given, so callers wanting the default must set it.
type Request struct {
	Title       string  `json:"title"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Description is the generated text and the backend that produced it.
type Description struct {
	Title   string `json:"title"`
	Text    string `json:"description"`
	Backend string `json:"backend"`
}

type Generator struct {
	gen llm.Generator
}

func New(gen llm.Generator) *Generator {
	return &Generator{gen: gen}
}

// Validate normalizes the title and checks the slider ranges.
func (r Request) Validate() (Request, error) {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return r, ErrEmptyTitle
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.MaxTokens < MinMaxTokens || r.MaxTokens > MaxMaxTokens {
		return r, &RangeError{Field: "max_tokens", Value: float64(r.MaxTokens), Min: MinMaxTokens, Max: MaxMaxTokens}
	}
	if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		return r, &RangeError{Field: "temperature", Value: r.Temperature, Min: MinTemperature, Max: MaxTemperature}
	}
	return r, nil
}

func (g *Generator) Describe(ctx context.Context, req Request) (Description, error) {
	req, err := req.Validate()
	if err != nil {
		return Description{}, err
	}
	res, err := g.gen.Generate(ctx, Prompt(req.Title), llm.Options{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return Description{}, fmt.Errorf("generate job description: %w", err)
	}
	return Description{
		Title:   req.Title,
		Text:    strings.TrimSpace(res.Text),
		Backend: res.Backend,
	}, nil
}

// Prompt builds the structured job description template.
func Prompt(title string) string {
	return fmt.Sprintf(`Generate a detailed, gender-neutral job description for the role of %[1]s.
The description should be inclusive, avoiding gendered language, and emphasizing skills and qualifications.

---
Job Title: %[1]s

Responsibilities:
-

Qualifications:
-

Work Environment:
-

Ensure the description remains gender-neutral, welcoming individuals from all backgrounds.
Provide only the job description without additional explanations.`, title)
}

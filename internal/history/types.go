// Package history records bias analyses, job descriptions and translations.
package history

import (
	"context"
	"time"
)

type Kind string

const (
	KindBiasAnalysis   Kind = "bias_analysis"
	KindBiasDetect     Kind = "bias_detect"
	KindBiasCorrect    Kind = "bias_correct"
	KindBiasScore      Kind = "bias_score"
	KindJobDescription Kind = "job_description"
	KindTranslation    Kind = "translation"
	KindInterpreter    Kind = "interpreter_turn"
)

// Record is one processed request.
type Record struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Input       string    `json:"input"`
	Output      string    `json:"output"`
	Backend     string    `json:"backend,omitempty"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Query filters Recent. An empty Kind matches every kind.
type Query struct {
	Kind  Kind
	Limit int
}

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	default:
		return q.Limit
	}
}

// Store persists records and returns the most recent first.
type Store interface {
	Save(ctx context.Context, record Record) error
	Recent(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

package history

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(0), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}

// Recorder redacts inputs before saving. Save failures are logged, not returned.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, kind Kind, input, output, backend string) {
	if r == nil || r.store == nil {
		return
	}
	redacted, changed := RedactPII(input)
	err := r.store.Save(ctx, Record{
		Kind:        kind,
		Input:       redacted,
		Output:      output,
		Backend:     backend,
		PIIRedacted: changed,
	})
	if err != nil {
		r.logger.Warn("saving history record failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (r *Recorder) Recent(ctx context.Context, q Query) ([]Record, error) {
	if r == nil || r.store == nil {
		return nil, nil
	}
	return r.store.Recent(ctx, q)
}

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageTranslate, 500)
	w.Observe(StageTranslate, 700)
	w.Observe(StageTranslate, 900)
	w.Observe("", 100)
	w.Observe(StageRecognize, -1)
	w.ObserveIndicator("not_understood")
	w.ObserveIndicator("not_understood")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageTranslate || s.Samples != 3 {
		t.Fatalf("stage = %q/%d, want translate/3", s.Stage, s.Samples)
	}
	if s.LastMS != 900 || s.P50MS != 700 || s.MaxMS != 900 {
		t.Fatalf("last/p50/max = %.2f/%.2f/%.2f, want 900/700/900", s.LastMS, s.P50MS, s.MaxMS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.BudgetP95MS != 1500 {
		t.Fatalf("BudgetP95MS = %.2f, want 1500", s.BudgetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want one entry with count 2", snap.Indicators)
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := newStageWindow(2)
	w.Observe(StagePlayback, 1)
	w.Observe(StagePlayback, 2)
	w.Observe(StagePlayback, 30)

	s := w.Snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.MaxMS != 30 || s.AvgMS != 16 {
		t.Fatalf("max/avg = %.2f/%.2f, want 30/16", s.MaxMS, s.AvgMS)
	}

	w.Reset()
	if got := len(w.Snapshot().Stages); got != 0 {
		t.Fatalf("len(Stages) after Reset = %d, want 0", got)
	}
}

func TestMetricsInstancesAreIndependent(t *testing.T) {
	a := NewMetrics("neutralize_test")
	b := NewMetrics("neutralize_test")

	a.ObserveFallback("timeout")
	a.ObserveFallback("timeout")
	b.ObserveFallback("timeout")
	a.ObserveGeneration("gemini", "ok", 120*time.Millisecond)

	if got := testutil.ToFloat64(a.Fallbacks.WithLabelValues("timeout")); got != 2 {
		t.Fatalf("a fallbacks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(b.Fallbacks.WithLabelValues("timeout")); got != 1 {
		t.Fatalf("b fallbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(a.GenerationRequests.WithLabelValues("gemini", "ok")); got != 1 {
		t.Fatalf("generation requests = %v, want 1", got)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveClassification("Yes")
	if snap := nilMetrics.StageSnapshot(); len(snap.Stages) != 0 {
		t.Fatalf("nil StageSnapshot() = %+v, want empty", snap)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	logger, err := NewLogger("warn", false)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Fatalf("debug enabled at warn level")
	}

	logger, err = NewLogger("warn", true)
	if err != nil {
		t.Fatalf("NewLogger(verbose) error = %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Fatalf("debug disabled with verbose")
	}

	if _, err := NewLogger("chatty", false); err == nil {
		t.Fatalf("NewLogger(chatty) error = nil, want error")
	}
}

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry
	stages   *stageWindow

	GenerationRequests *prometheus.CounterVec
	GenerationLatency  *prometheus.HistogramVec
	Fallbacks          *prometheus.CounterVec
	Classifications    *prometheus.CounterVec
	Translations       *prometheus.CounterVec
	SpeechOutcomes     *prometheus.CounterVec
	InterpreterTurns   *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec
}

// NewMetrics registers every instrument on a fresh registry, so several instances can coexist in one process.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stages:   newStageWindow(256),
		GenerationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Text generation calls by backend and outcome.",
		}, []string{"backend", "outcome"}),
		GenerationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_ms",
			Help:      "Text generation latency in milliseconds by backend.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}, []string{"backend"}),
		Fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_fallbacks_total",
			Help:      "Remote generation failures that fell back to the local model, by reason.",
		}, []string{"reason"}),
		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bias_classifications_total",
			Help:      "Bias detection results by label.",
		}, []string{"label"}),
		Translations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Translation requests by backend and outcome.",
		}, []string{"backend", "outcome"}),
		SpeechOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_outcomes_total",
			Help:      "Speech recognition and synthesis outcomes.",
		}, []string{"direction", "outcome"}),
		InterpreterTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpreter_turns_total",
			Help:      "Interpreter turns by source language and outcome.",
		}, []string{"source", "outcome"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active interpreter sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) ObserveGeneration(backend, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationRequests.WithLabelValues(backend, outcome).Inc()
	m.GenerationLatency.WithLabelValues(backend).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveClassification(label string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveTranslation(backend, outcome string) {
	if m == nil {
		return
	}
	m.Translations.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) ObserveSpeech(direction, outcome string) {
	if m == nil {
		return
	}
	m.SpeechOutcomes.WithLabelValues(direction, outcome).Inc()
}

func (m *Metrics) ObserveInterpreterTurn(source, outcome string) {
	if m == nil {
		return
	}
	m.InterpreterTurns.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string, active int) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
	m.ActiveSessions.Set(float64(active))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// ObserveStage records a pipeline stage latency in the rolling window served by StageSnapshot.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveStageIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) StageSnapshot() StageSnapshot {
	if m == nil {
		return StageSnapshot{}
	}
	return m.stages.Snapshot()
}

func (m *Metrics) ResetStages() {
	if m == nil {
		return
	}
	m.stages.Reset()
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

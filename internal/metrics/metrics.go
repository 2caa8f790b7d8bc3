// Package metrics registers the backend's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the backend records to. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	dispatchTotal    *prometheus.CounterVec
	selectionTotal   *prometheus.CounterVec
	continuations    prometheus.Counter
	dispatchDuration prometheus.Histogram
	summariesTotal   *prometheus.CounterVec
	feedEventsTotal  *prometheus.CounterVec
	transcribeTotal  *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		dispatchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "skyhug_dispatch_total",
			Help: "AI dispatches by outcome",
		}, []string{"outcome"}),
		selectionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "skyhug_model_selection_total",
			Help: "Model selections by model and matching rule",
		}, []string{"model", "rule"}),
		continuations: f.NewCounter(prometheus.CounterOpts{
			Name: "skyhug_continuations_total",
			Help: "Continuation calls issued for truncated replies",
		}),
		dispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "skyhug_dispatch_duration_seconds",
			Help:    "Time from claim to terminal status",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		}),
		summariesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "skyhug_summaries_total",
			Help: "Memory summarizations by outcome",
		}, []string{"outcome"}),
		feedEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "skyhug_feed_events_total",
			Help: "Change feed events by type and eligibility",
		}, []string{"type", "eligible"}),
		transcribeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "skyhug_transcriptions_total",
			Help: "Audio transcriptions by outcome",
		}, []string{"outcome"}),
	}
}

// Dispatch records one dispatch outcome ("done", "error", "skipped") and its duration.
func (m *Metrics) Dispatch(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		m.dispatchDuration.Observe(elapsed.Seconds())
	}
}

// ModelSelected records which model a rule chose.
func (m *Metrics) ModelSelected(model, rule string) {
	if m == nil {
		return
	}
	m.selectionTotal.WithLabelValues(model, rule).Inc()
}

// Continuation records one continuation call.
func (m *Metrics) Continuation() {
	if m == nil {
		return
	}
	m.continuations.Inc()
}

// Summary records one summarization outcome ("written", "skipped", "error").
func (m *Metrics) Summary(outcome string) {
	if m == nil {
		return
	}
	m.summariesTotal.WithLabelValues(outcome).Inc()
}

// FeedEvent records one change event.
func (m *Metrics) FeedEvent(eventType string, eligible bool) {
	if m == nil {
		return
	}
	e := "false"
	if eligible {
		e = "true"
	}
	m.feedEventsTotal.WithLabelValues(eventType, e).Inc()
}

// Transcription records one transcription outcome ("done", "error").
func (m *Metrics) Transcription(outcome string) {
	if m == nil {
		return
	}
	m.transcribeTotal.WithLabelValues(outcome).Inc()
}

// Package observability provides a prometheus-backed implementation of
// domain.LifecycleHooks. Wire the returned hooks into the session store and
// the live status channel to get save/merge/mode metrics for free.
package observability

import (
	"github.com/aretw0/weave/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for one client instance.
type Metrics struct {
	savesTotal    *prometheus.CounterVec
	saveDuration  prometheus.Histogram
	statusUpdates *prometheus.CounterVec
	modeChanges   *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		savesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weave_saves_total",
				Help: "Total number of graph save attempts by outcome",
			},
			[]string{"outcome"},
		),
		saveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name: "weave_save_duration_seconds",
				Help: "Duration of graph save requests",
			},
		),
		statusUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weave_status_updates_total",
				Help: "Node status updates by source and merge decision",
			},
			[]string{"source", "decision"},
		),
		modeChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weave_channel_mode_changes_total",
				Help: "Live status channel mode transitions",
			},
			[]string{"mode"},
		),
	}
	reg.MustRegister(m.savesTotal, m.saveDuration, m.statusUpdates, m.modeChanges)
	return m
}

// Hooks returns lifecycle hooks feeding these collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSaveResult: func(e *domain.SaveEvent) {
			m.savesTotal.WithLabelValues(string(e.Outcome)).Inc()
			m.saveDuration.Observe(e.Duration.Seconds())
		},
		OnStatusApplied: func(e *domain.StatusEvent) {
			m.statusUpdates.WithLabelValues(e.Source, "applied").Inc()
		},
		OnStatusDiscarded: func(e *domain.StatusEvent) {
			m.statusUpdates.WithLabelValues(e.Source, "discarded").Inc()
		},
		OnModeChange: func(e *domain.ModeEvent) {
			m.modeChanges.WithLabelValues(string(e.Mode)).Inc()
		},
	}
}

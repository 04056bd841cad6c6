package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/aretw0/weave/pkg/domain"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	hooks := m.Hooks()

	hooks.OnSaveResult(&domain.SaveEvent{
		Graph:    "demo",
		Outcome:  domain.SaveOutcomeSuccess,
		Duration: 120 * time.Millisecond,
	})
	hooks.OnSaveResult(&domain.SaveEvent{
		Graph:   "demo",
		Outcome: domain.SaveOutcomeFailure,
		Err:     errors.New("version conflict"),
	})
	hooks.OnStatusApplied(&domain.StatusEvent{NodeID: "n1", Source: "push"})
	hooks.OnStatusApplied(&domain.StatusEvent{NodeID: "n1", Source: "poll"})
	hooks.OnStatusDiscarded(&domain.StatusEvent{NodeID: "n1", Source: "push"})
	hooks.OnModeChange(&domain.ModeEvent{Mode: domain.ModeDegraded, Level: 1})
	hooks.OnModeChange(&domain.ModeEvent{Mode: domain.ModeLive})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.savesTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.savesTotal.WithLabelValues("failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.statusUpdates.WithLabelValues("push", "applied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.statusUpdates.WithLabelValues("poll", "applied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.statusUpdates.WithLabelValues("push", "discarded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.modeChanges.WithLabelValues("degraded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.modeChanges.WithLabelValues("live")))
}

func TestMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Hooks().OnSaveResult(&domain.SaveEvent{Outcome: domain.SaveOutcomeSuccess})

	families, err := reg.Gather()
	assert.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["weave_saves_total"])
	assert.True(t, names["weave_save_duration_seconds"])
}

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterIncrement(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("webhook_events_total", map[string]string{"provider": "telephony"}, "events")
	r.IncrementCounter("webhook_events_total", map[string]string{"provider": "telephony"}, "events")
	r.AddToCounter("webhook_events_total", 3, map[string]string{"provider": "telephony"}, "events")

	all := r.GetAllMetrics()
	counters := all["counters"].(map[string]*Metric)
	require.Len(t, counters, 1)
	for _, counter := range counters {
		assert.Equal(t, float64(5), counter.Value)
		assert.Equal(t, Counter, counter.Type)
	}
}

func TestCountersWithDifferentLabelsAreSeparate(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("webhook_events_total", map[string]string{"provider": "cloud"}, "events")
	r.IncrementCounter("webhook_events_total", map[string]string{"provider": "telephony"}, "events")

	counters := r.GetAllMetrics()["counters"].(map[string]*Metric)
	assert.Len(t, counters, 2)
}

func TestRecordTimer(t *testing.T) {
	r := NewRegistry()

	r.RecordTimer("transcription_duration", 100*time.Millisecond, nil, "latency")
	r.RecordTimer("transcription_duration", 300*time.Millisecond, nil, "latency")

	timers := r.GetAllMetrics()["timers"].(map[string]*TimerMetric)
	require.Len(t, timers, 1)
	timer := timers["transcription_duration"]
	assert.Equal(t, int64(2), timer.Count)
	assert.InDelta(t, 400, timer.Sum, 1)
	assert.InDelta(t, 100, timer.Min, 1)
	assert.InDelta(t, 300, timer.Max, 1)
	assert.InDelta(t, 200, timer.Average, 1)
}

func TestTimerPercentiles(t *testing.T) {
	r := NewRegistry()

	for i := 1; i <= 100; i++ {
		r.RecordTimer("http_request_duration", time.Duration(i)*time.Millisecond, nil, "latency")
	}

	timers := r.GetAllMetrics()["timers"].(map[string]*TimerMetric)
	timer := timers["http_request_duration"]
	assert.InDelta(t, 95, timer.P95, 2)
	assert.InDelta(t, 99, timer.P99, 2)
}

func TestSetGauge(t *testing.T) {
	r := NewRegistry()

	r.SetGauge("scratch_files", 3, nil, "transient files on disk")
	r.SetGauge("scratch_files", 0, nil, "transient files on disk")

	gauges := r.GetAllMetrics()["gauges"].(map[string]*Metric)
	require.Len(t, gauges, 1)
	assert.Equal(t, float64(0), gauges["scratch_files"].Value)
}

func TestMetricKeyIsStable(t *testing.T) {
	a := metricKey("m", map[string]string{"a": "1", "b": "2"})
	b := metricKey("m", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a, b)
}

func TestGlobalRegistry(t *testing.T) {
	IncrementCounter("global_test_counter", nil, "test")
	counters := GetAllMetrics()["counters"].(map[string]*Metric)
	assert.Contains(t, counters, "global_test_counter")
}

package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("build", time.Second)
	r.ObserveRunDuration(time.Second)
	r.IncStageResult("build", ResultSuccess)
	r.IncRunOutcome("success")
	r.IncPublish(true)
}

func TestPrometheusRecorderRegisters(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveStageDuration("build", 250*time.Millisecond)
	r.ObserveRunDuration(time.Second)
	r.IncStageResult("publish", ResultFatal)
	r.IncRunOutcome("failed")
	r.IncPublish(false)
	r.IncPublish(true)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	want := map[string]bool{
		"sitepub_stage_duration_seconds": false,
		"sitepub_run_duration_seconds":   false,
		"sitepub_stage_results_total":    false,
		"sitepub_run_outcomes_total":     false,
		"sitepub_publishes_total":        false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestPrometheusRecorderNilSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.ObserveStageDuration("build", time.Second)
	r.IncRunOutcome("success")
	r.IncPublish(false)
}

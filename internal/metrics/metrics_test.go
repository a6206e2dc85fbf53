package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCoordinatorCollectorsArePerRegistry(t *testing.T) {
	a := NewCoordinator(prometheus.NewRegistry())
	b := NewCoordinator(prometheus.NewRegistry())

	a.EpisodesTotal.Add(3)
	a.Checkpoints.WithLabelValues(CheckpointSaved).Inc()
	b.EpisodesTotal.Inc()

	if got := testutil.ToFloat64(a.EpisodesTotal); got != 3 {
		t.Fatalf("unexpected episodes on a: %v", got)
	}
	if got := testutil.ToFloat64(b.EpisodesTotal); got != 1 {
		t.Fatalf("unexpected episodes on b: %v", got)
	}
	if got := testutil.ToFloat64(a.Checkpoints.WithLabelValues(CheckpointSaved)); got != 1 {
		t.Fatalf("unexpected saved checkpoints: %v", got)
	}
}

func TestWorkerObserveEvaluation(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := NewWorker(reg)
	w.ObserveEvaluation(2 * time.Millisecond)
	w.ObserveEvaluation(5 * time.Millisecond)

	if n := testutil.CollectAndCount(w.EvaluationDuration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "evostrat_worker_evaluation_duration_seconds" {
			if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
				t.Fatalf("expected 2 samples, got %d", got)
			}
			return
		}
	}
	t.Fatal("histogram not registered")
}

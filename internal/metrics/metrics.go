// Package metrics holds the prometheus collectors for coordinators and
// workers. Each set registers on the registry it is handed so several
// instances can coexist in one process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "evostrat"

// Checkpoint outcomes.
const (
	CheckpointSaved   = "saved"
	CheckpointSkipped = "skipped"
	CheckpointTimeout = "timeout"
	CheckpointFailed  = "failed"
)

type Coordinator struct {
	EpisodesTotal    prometheus.Counter
	EpisodesRejected prometheus.Counter
	BlocksTotal      prometheus.Counter
	ConnectedWorkers prometheus.Gauge
	BufferedEpisodes prometheus.Gauge
	SmoothedReward   prometheus.Gauge
	BlockMeanReward  prometheus.Gauge
	Checkpoints      *prometheus.CounterVec
	DroppedWorkers   prometheus.Counter
}

func NewCoordinator(reg prometheus.Registerer) *Coordinator {
	f := promauto.With(reg)
	return &Coordinator{
		EpisodesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "episodes_total",
			Help:      "Episodes accepted into the block buffer.",
		}),
		EpisodesRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "episodes_rejected_total",
			Help:      "Episode messages dropped as malformed.",
		}),
		BlocksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "blocks_total",
			Help:      "Blocks committed to history.",
		}),
		ConnectedWorkers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "connected_workers",
			Help:      "Workers currently registered for broadcasts.",
		}),
		BufferedEpisodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "buffered_episodes",
			Help:      "Episodes waiting for the next commit.",
		}),
		SmoothedReward: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "smoothed_reward",
			Help:      "Exponentially smoothed mean block reward.",
		}),
		BlockMeanReward: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "block_mean_reward",
			Help:      "Mean reward of the last committed block.",
		}),
		Checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "checkpoints_total",
			Help:      "Checkpoint attempts by outcome.",
		}, []string{"outcome"}),
		DroppedWorkers: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "dropped_workers_total",
			Help:      "Workers disconnected because their outbound queue overflowed.",
		}),
	}
}

type Worker struct {
	EpisodesTotal      prometheus.Counter
	EvaluationErrors   prometheus.Counter
	BlocksApplied      prometheus.Counter
	EvaluationDuration prometheus.Histogram
	Reconnects         prometheus.Counter
}

func NewWorker(reg prometheus.Registerer) *Worker {
	f := promauto.With(reg)
	return &Worker{
		EpisodesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "episodes_total",
			Help:      "Episodes reported to the coordinator.",
		}),
		EvaluationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "evaluation_errors_total",
			Help:      "Evaluations that failed or produced a non-finite reward.",
		}),
		BlocksApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "blocks_applied_total",
			Help:      "Blocks folded into the local parameters, replay included.",
		}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of a single episode evaluation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after a lost coordinator link.",
		}),
	}
}

func (w *Worker) ObserveEvaluation(d time.Duration) {
	w.EvaluationDuration.Observe(d.Seconds())
}

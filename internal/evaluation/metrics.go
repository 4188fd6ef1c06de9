package evaluation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openproc/tender-engine/internal/model"
)

var (
	scoresSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tender",
		Subsystem: "evaluation",
		Name:      "scores_submitted_total",
		Help:      "Raw criterion scores accepted by the engine.",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tender",
		Subsystem: "evaluation",
		Name:      "runs_total",
		Help:      "Completed ranking runs by evaluation type.",
	}, []string{"type"})

	rankedBids = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tender",
		Subsystem: "evaluation",
		Name:      "ranked_bids_per_run",
		Help:      "Number of bids that received a rank in a run.",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tender",
		Subsystem: "evaluation",
		Name:      "run_duration_seconds",
		Help:      "Wall time spent computing and persisting a ranking run.",
		Buckets:   prometheus.DefBuckets,
	})

	winnersDeclared = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tender",
		Subsystem: "evaluation",
		Name:      "winners_declared_total",
		Help:      "Declare-winner attempts by outcome.",
	}, []string{"outcome"})
)

func observeRun(run *model.EvaluationRun) {
	runsTotal.WithLabelValues(string(run.Type)).Inc()
	rankedBids.Observe(float64(len(run.Ranked())))
}

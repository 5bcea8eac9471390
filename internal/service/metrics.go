package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nodeflow_sessions_open",
		Help: "Number of project sessions held in memory",
	})

	historyCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodeflow_history_commits_total",
		Help: "Graph commits by kind: entry (new undo entry) or transient (skip-history overwrite)",
	}, []string{"kind"})

	historyNavigationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodeflow_history_navigation_total",
		Help: "Undo and redo requests that moved the cursor",
	}, []string{"direction"})

	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodeflow_generations_total",
		Help: "Finished generation tasks by node type and outcome",
	}, []string{"node_type", "outcome"})

	generationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nodeflow_generations_in_flight",
		Help: "Generation tasks currently running",
	})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nodeflow_generation_duration_seconds",
		Help:    "Duration of generation calls",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"node_type"})

	savesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodeflow_saves_total",
		Help: "Save requests by result: saved, unchanged or error",
	}, []string{"result"})
)

// Generation outcomes
const (
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeCancelled = "cancelled"
	outcomeDiscarded = "discarded"
)

// Package metrics holds the Prometheus instruments of the campfire game.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campfire_ticks_total",
			Help: "Total number of phase engine ticks by outcome status.",
		},
		[]string{"status"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campfire_transitions_total",
			Help: "Total number of completed phase transitions.",
		},
		[]string{"from", "to"},
	)

	OptionSynthesisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campfire_option_synthesis_total",
			Help: "Total number of vote openings by how the options were produced.",
		},
		[]string{"outcome"},
	)

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "campfire_tick_duration_seconds",
		Help:    "Wall time of phase engine ticks.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})

	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campfire_votes_total",
			Help: "Total number of vote attempts by result.",
		},
		[]string{"result"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campfire_submissions_total",
			Help: "Total number of stored submissions by origin.",
		},
		[]string{"origin"},
	)
)

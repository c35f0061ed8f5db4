// SPDX-License-Identifier: MIT

package resolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolveSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfeed_resolve_steps_total",
			Help: "Resolver step outcomes",
		},
		[]string{"step", "result"}, // result=success/error
	)
	resolveStepLat = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelfeed_resolve_step_seconds",
			Help:    "Resolver step latency",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"step"},
	)
)

func observeStep(step string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	resolveSteps.WithLabelValues(step, result).Inc()
	resolveStepLat.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

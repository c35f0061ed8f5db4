// SPDX-License-Identifier: MIT

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fillAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelfeed_fill_attempts_total",
		Help: "Fill pipeline attempts by outcome.",
	}, []string{"outcome"})

	fillDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelfeed_fill_duration_seconds",
		Help:    "Wall-clock duration of successful fill attempts.",
		Buckets: prometheus.DefBuckets,
	})
)

const (
	outcomeSuccess     = "success"
	outcomePreempted   = "preempted"
	outcomeInterrupted = "interrupted"
	outcomeExhausted   = "exhausted"
	outcomeContent     = "content_failure"
	outcomeTransient   = "transient_failure"
)

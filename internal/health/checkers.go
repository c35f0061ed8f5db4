// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/reelfeed/reelfeed/internal/resilience"
)

// PipelineChecker flags a fill loop that stopped ticking. A stale loop
// means the cache will drain as the user keeps swiping.
type PipelineChecker struct {
	lastActivity func() time.Time
	maxAge       time.Duration
}

// NewPipelineChecker wires the pipeline's LastActivity. maxAge should be a
// few fill ticks.
func NewPipelineChecker(lastActivity func() time.Time, maxAge time.Duration) *PipelineChecker {
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}
	return &PipelineChecker{lastActivity: lastActivity, maxAge: maxAge}
}

func (c *PipelineChecker) Name() string { return "fill_pipeline" }

func (c *PipelineChecker) Check(context.Context) CheckResult {
	last := c.lastActivity()
	if last.IsZero() {
		return CheckResult{Status: StatusDegraded, Message: "pipeline has not ticked yet"}
	}
	if age := time.Since(last); age > c.maxAge {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  fmt.Sprintf("pipeline stale for %s", age.Round(time.Second)),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

// CacheChecker grades the cache fill level. An empty cache is degraded, not
// unhealthy: the engine still serves swipes through the urgent path.
type CacheChecker struct {
	count  func() int
	target int
}

func NewCacheChecker(count func() int, target int) *CacheChecker {
	return &CacheChecker{count: count, target: target}
}

func (c *CacheChecker) Name() string { return "cache_store" }

func (c *CacheChecker) Check(context.Context) CheckResult {
	n := c.count()
	switch {
	case n == 0:
		return CheckResult{Status: StatusDegraded, Message: "cache is empty"}
	case n < c.target:
		return CheckResult{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("filling: %d of %d", n, c.target),
		}
	default:
		return CheckResult{Status: StatusHealthy}
	}
}

// BreakerChecker reports the catalog circuit breaker state. An open breaker
// means resolves are failing fast.
type BreakerChecker struct {
	breaker *resilience.CircuitBreaker
}

func NewBreakerChecker(breaker *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{breaker: breaker}
}

func (c *BreakerChecker) Name() string { return "catalog_breaker" }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch state := c.breaker.State(); state {
	case resilience.StateOpen:
		return CheckResult{Status: StatusUnhealthy, Error: "circuit breaker open"}
	case resilience.StateHalfOpen:
		return CheckResult{Status: StatusDegraded, Message: "circuit breaker half-open"}
	default:
		return CheckResult{Status: StatusHealthy}
	}
}

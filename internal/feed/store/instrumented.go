// SPDX-License-Identifier: MIT

package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reelfeed/reelfeed/internal/feed/model"
)

var (
	cacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfeed_cache_ops_total",
			Help: "Total cache store operations",
		},
		[]string{"op", "result"}, // result=hit/miss for reads, ok for writes
	)
	cacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelfeed_cache_entries",
			Help: "Current number of prepared entries in the cache store",
		},
	)
)

// instrumentedStore wraps any Store to capture metrics.
type instrumentedStore struct {
	inner Store
}

// NewInstrumentedStore decorates a Store with prometheus accounting.
func NewInstrumentedStore(inner Store) Store {
	return &instrumentedStore{inner: inner}
}

func (i *instrumentedStore) Insert(entry *model.CacheEntry) {
	i.inner.Insert(entry)
	cacheOps.WithLabelValues("insert", "ok").Inc()
	cacheSize.Set(float64(i.inner.Count()))
}

func (i *instrumentedStore) Lookup(id string) (*model.CacheEntry, bool) {
	e, ok := i.inner.Lookup(id)
	if ok {
		cacheOps.WithLabelValues("lookup", "hit").Inc()
	} else {
		cacheOps.WithLabelValues("lookup", "miss").Inc()
	}
	return e, ok
}

func (i *instrumentedStore) Remove(id string) (*model.CacheEntry, bool) {
	e, ok := i.inner.Remove(id)
	if ok {
		cacheOps.WithLabelValues("remove", "hit").Inc()
	} else {
		cacheOps.WithLabelValues("remove", "miss").Inc()
	}
	cacheSize.Set(float64(i.inner.Count()))
	return e, ok
}

func (i *instrumentedStore) Count() int { return i.inner.Count() }

func (i *instrumentedStore) Clear() {
	i.inner.Clear()
	cacheOps.WithLabelValues("clear", "ok").Inc()
	cacheSize.Set(0)
}

func (i *instrumentedStore) Identifiers() map[string]struct{} {
	return i.inner.Identifiers()
}

var _ Store = (*instrumentedStore)(nil)

// SPDX-License-Identifier: MIT

package store

import (
	"sync"
	"time"
)

// FailureTable tracks resolve failures per identifier. Content failures
// (item unusable) count toward a permanent flag; transient failures
// (network) keep a short-lived counter that decays, so a flaky network does
// not poison the candidate pool for the whole session.
type FailureTable struct {
	mu sync.Mutex

	contentThreshold   int
	transientThreshold int
	transientTTL       time.Duration

	entries map[string]*failureState
}

type failureState struct {
	content       int
	transient     int
	lastTransient time.Time
	permanent     bool
}

// FailureTableConfig carries the empirically tuned thresholds.
type FailureTableConfig struct {
	ContentThreshold   int           // content failures before permanent skip
	TransientThreshold int           // transient failures before permanent skip
	TransientTTL       time.Duration // transient counter decay window
}

// NewFailureTable creates an empty table. Zero config fields fall back to
// the shipped defaults.
func NewFailureTable(cfg FailureTableConfig) *FailureTable {
	if cfg.ContentThreshold <= 0 {
		cfg.ContentThreshold = 1
	}
	if cfg.TransientThreshold <= 0 {
		cfg.TransientThreshold = 5
	}
	if cfg.TransientTTL <= 0 {
		cfg.TransientTTL = 2 * time.Minute
	}
	return &FailureTable{
		contentThreshold:   cfg.ContentThreshold,
		transientThreshold: cfg.TransientThreshold,
		transientTTL:       cfg.TransientTTL,
		entries:            make(map[string]*failureState),
	}
}

// Record notes one failed resolve. permanent marks a content-classified
// failure (not found, corrupt, unsupported format).
func (t *FailureTable) Record(id string, permanent bool) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.entries[id]
	if st == nil {
		st = &failureState{}
		t.entries[id] = st
	}
	now := time.Now()
	if permanent {
		st.content++
		if st.content >= t.contentThreshold {
			st.permanent = true
		}
		return
	}
	if now.Sub(st.lastTransient) > t.transientTTL {
		st.transient = 0
	}
	st.transient++
	st.lastTransient = now
	if st.transient >= t.transientThreshold {
		st.permanent = true
	}
}

// IsPermanent reports whether the identifier is excluded from candidate
// selection until the table is reset.
func (t *FailureTable) IsPermanent(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.entries[id]
	return st != nil && st.permanent
}

// Failures returns the total recorded failure count for the identifier.
func (t *FailureTable) Failures(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.entries[id]
	if st == nil {
		return 0
	}
	return st.content + st.transient
}

// PermanentCount returns how many identifiers are currently flagged.
func (t *FailureTable) PermanentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, st := range t.entries {
		if st.permanent {
			n++
		}
	}
	return n
}

// Reset clears the table. Called when the catalog or collection preference
// changes: previously failed identifiers get a fresh chance.
func (t *FailureTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*failureState)
}

// SPDX-License-Identifier: MIT

package model

import (
	"encoding/json"
	"time"
)

// BufferState classifies the buffer health of a single playback handle.
// States are ordered: comparisons like state >= BufferSufficient are valid.
type BufferState int

const (
	BufferUnknown BufferState = iota
	BufferEmpty
	BufferCritical
	BufferLow
	BufferSufficient
	BufferGood
	BufferExcellent
)

func (s BufferState) String() string {
	switch s {
	case BufferEmpty:
		return "empty"
	case BufferCritical:
		return "critical"
	case BufferLow:
		return "low"
	case BufferSufficient:
		return "sufficient"
	case BufferGood:
		return "good"
	case BufferExcellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state by name so event consumers never see the
// numeric ordering.
func (s BufferState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses a state name; unrecognized names map to unknown.
func (s *BufferState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st := BufferUnknown; st <= BufferExcellent; st++ {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	*s = BufferUnknown
	return nil
}

// BufferThresholds holds the increasing buffered-ahead durations that bound
// each state. Values are tuned empirically and therefore configuration, not
// contract.
type BufferThresholds struct {
	Critical  time.Duration // below: critical
	Low       time.Duration // below: low
	Good      time.Duration // at or above: good
	Excellent time.Duration // at or above: excellent
}

// DefaultBufferThresholds mirrors the tuning shipped with the daemon.
func DefaultBufferThresholds() BufferThresholds {
	return BufferThresholds{
		Critical:  2 * time.Second,
		Low:       5 * time.Second,
		Good:      15 * time.Second,
		Excellent: 30 * time.Second,
	}
}

// Classify maps a sampled buffered-ahead duration and stall flag to a state.
// A stalled player is never reported better than critical.
func (t BufferThresholds) Classify(buffered time.Duration, stalled bool) BufferState {
	if buffered <= 0 {
		return BufferEmpty
	}
	if stalled {
		return BufferCritical
	}
	switch {
	case buffered < t.Critical:
		return BufferCritical
	case buffered < t.Low:
		return BufferLow
	case buffered >= t.Excellent:
		return BufferExcellent
	case buffered >= t.Good:
		return BufferGood
	default:
		return BufferSufficient
	}
}

// SPDX-License-Identifier: MIT

package model

// Slot names one of the three player positions the engine tracks.
type Slot string

const (
	SlotCurrent  Slot = "current"
	SlotNext     Slot = "next"
	SlotPrevious Slot = "previous"
)

// ReadyEvent is broadcast whenever a speculative slot flips between armed
// and invalidated.
type ReadyEvent struct {
	Slot  Slot   `json:"slot"`
	ID    string `json:"identifier,omitempty"`
	Ready bool   `json:"ready"`
}

// BufferEvent is broadcast on every buffer-state transition of a monitored
// handle. Intermediate samples that do not change the state are not emitted.
type BufferEvent struct {
	Slot  Slot        `json:"slot"`
	ID    string      `json:"identifier,omitempty"`
	State BufferState `json:"state"`
}

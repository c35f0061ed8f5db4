// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID  = "request_id"
	FieldAttemptID  = "attempt_id"
	FieldIdentifier = "identifier"
	FieldCollection = "collection"

	// Process / pipeline fields
	FieldEvent      = "event"
	FieldComponent  = "component"
	FieldCheckpoint = "checkpoint"
	FieldOutcome    = "outcome"
	FieldSlot       = "slot"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Cache fields
	FieldCacheSize = "cache_size"
	FieldEvicted   = "evicted"
)

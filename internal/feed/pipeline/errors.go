// SPDX-License-Identifier: MIT

package pipeline

import "errors"

var (
	// ErrPreempted marks a fill attempt aborted because an urgent preload
	// holds the hard block. Not a failure; the attempt retries next tick.
	ErrPreempted = errors.New("fill attempt preempted")

	// ErrInterrupted marks a fill attempt aborted by cancellation or
	// because filling is not yet allowed to run.
	ErrInterrupted = errors.New("fill attempt interrupted")

	// ErrExhausted means no viable candidate was found after bounded
	// retries: the pool is empty or fully flagged in the failure table.
	ErrExhausted = errors.New("candidate pool exhausted")
)

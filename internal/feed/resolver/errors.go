// SPDX-License-Identifier: MIT

package resolver

import (
	"errors"
	"fmt"
)

// Kind classifies a resolve failure. The content/transient distinction is
// load-bearing: content failures flag the identifier permanently in the
// failure table, transient failures stay retryable.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindNoPlayableFile    Kind = "no_playable_file"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindTransient         Kind = "transient"
)

// Permanent reports whether the failure makes the identifier unusable for
// the rest of the session.
func (k Kind) Permanent() bool {
	switch k {
	case KindNotFound, KindNoPlayableFile, KindUnsupportedFormat:
		return true
	default:
		return false
	}
}

// Error is a classified resolve failure for one identifier.
type Error struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %s: %v", e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("resolve %s: %s", e.ID, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a failure classification.
func NewError(kind Kind, id string, err error) *Error {
	return &Error{Kind: kind, ID: id, Err: err}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors are treated as transient so they never permanently poison an
// identifier by accident.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransient
}

// IsPermanent reports whether the error is a content-classified failure.
func IsPermanent(err error) bool {
	return KindOf(err).Permanent()
}

// FailedID extracts the identifier a classified failure refers to, or ""
// for unclassified errors.
func FailedID(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.ID
	}
	return ""
}

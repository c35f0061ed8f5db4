// SPDX-License-Identifier: MIT

// Package provider supplies content identifiers to the feed engine. Each
// feed type (random catalog, saved favorites, search results) implements the
// same navigation contract; the engine never knows which one it is driving.
package provider

// CandidateProvider is the navigation contract of a feed. Peek calls are
// strictly non-mutating: two consecutive peeks in the same direction return
// the same identifier, and peeking never changes what a later Advance or
// Retreat returns. Only Advance and Retreat move the provider's position,
// and they are called exactly once per committed gesture.
type CandidateProvider interface {
	// PeekNext returns the identifier that Advance would make current,
	// without moving. ok is false when the feed is exhausted forward.
	PeekNext() (id string, ok bool)

	// PeekPrevious returns the identifier that Retreat would make current,
	// without moving. ok is false when the feed is exhausted backward.
	PeekPrevious() (id string, ok bool)

	// Advance moves the position forward and returns the now-current
	// identifier.
	Advance() (id string, ok bool)

	// Retreat moves the position backward and returns the now-current
	// identifier.
	Retreat() (id string, ok bool)

	// CandidatePool returns identifiers the background fill may prepare
	// speculatively. Order carries no meaning; the pipeline draws from it
	// at random.
	CandidatePool() []string
}

// SPDX-License-Identifier: MIT

package provider

import "sync"

// Results is an ordered-feed provider over a fixed identifier list, used
// for search results and other ranked feeds. The position starts before the
// first item; the first Advance makes item zero current.
type Results struct {
	mu     sync.Mutex
	items  []string
	cursor int
}

// NewResults creates an ordered provider over items.
func NewResults(items []string) *Results {
	return &Results{
		items:  append([]string(nil), items...),
		cursor: -1,
	}
}

func (r *Results) PeekNext() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor+1 >= len(r.items) {
		return "", false
	}
	return r.items[r.cursor+1], true
}

func (r *Results) PeekPrevious() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor <= 0 {
		return "", false
	}
	return r.items[r.cursor-1], true
}

func (r *Results) Advance() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor+1 >= len(r.items) {
		return "", false
	}
	r.cursor++
	return r.items[r.cursor], true
}

func (r *Results) Retreat() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor <= 0 {
		return "", false
	}
	r.cursor--
	return r.items[r.cursor], true
}

// CandidatePool returns the items still ahead of the position; the fill has
// no business preparing what was already passed.
func (r *Results) CandidatePool() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor+1 >= len(r.items) {
		return nil
	}
	return append([]string(nil), r.items[r.cursor+1:]...)
}

// replace swaps the backing list, clamping the position. Used by Favorites
// on reload.
func (r *Results) replace(items []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append([]string(nil), items...)
	if r.cursor >= len(r.items) {
		r.cursor = len(r.items) - 1
	}
}

var _ CandidateProvider = (*Results)(nil)

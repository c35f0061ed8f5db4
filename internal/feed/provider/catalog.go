// SPDX-License-Identifier: MIT

package provider

import (
	"math/rand"
	"sync"
)

// Catalog is a random-feed provider over a fixed identifier pool. Peeked
// candidates are memoized until the corresponding commit consumes them, so
// repeated peeks stay stable even though the draw itself is random. A small
// recency window keeps just-watched items from coming straight back.
type Catalog struct {
	mu          sync.Mutex
	pool        []string
	rand        *rand.Rand
	pendingNext string
	pendingPrev string
	recent      map[string]struct{}
	recentOrder []string
	recentCap   int
}

// NewCatalog creates a random-feed provider over pool. rnd may be nil; a
// deterministic source is useful in tests.
func NewCatalog(pool []string, rnd *rand.Rand) *Catalog {
	recentCap := len(pool) / 2
	if recentCap > 8 {
		recentCap = 8
	}
	return &Catalog{
		pool:      append([]string(nil), pool...),
		rand:      rnd,
		recent:    make(map[string]struct{}, recentCap),
		recentCap: recentCap,
	}
}

func (c *Catalog) PeekNext() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingNext == "" {
		c.pendingNext = c.draw()
	}
	return c.pendingNext, c.pendingNext != ""
}

func (c *Catalog) PeekPrevious() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingPrev == "" {
		c.pendingPrev = c.draw()
	}
	return c.pendingPrev, c.pendingPrev != ""
}

func (c *Catalog) Advance() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.pendingNext
	if id == "" {
		id = c.draw()
	}
	c.consume(id)
	return id, id != ""
}

func (c *Catalog) Retreat() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.pendingPrev
	if id == "" {
		id = c.draw()
	}
	c.consume(id)
	return id, id != ""
}

func (c *Catalog) CandidatePool() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.pool...)
}

// consume records id as recently served and resets both memoized peeks. The
// position moved, so anything peeked before the commit is stale.
func (c *Catalog) consume(id string) {
	c.pendingNext = ""
	c.pendingPrev = ""
	if id == "" || c.recentCap == 0 {
		return
	}
	if _, ok := c.recent[id]; !ok {
		c.recent[id] = struct{}{}
		c.recentOrder = append(c.recentOrder, id)
	}
	for len(c.recentOrder) > c.recentCap {
		oldest := c.recentOrder[0]
		c.recentOrder = c.recentOrder[1:]
		delete(c.recent, oldest)
	}
}

// draw picks a uniform random identifier avoiding the recency window and the
// other memoized peek. Callers hold c.mu.
func (c *Catalog) draw() string {
	if len(c.pool) == 0 {
		return ""
	}
	candidates := make([]string, 0, len(c.pool))
	for _, id := range c.pool {
		if _, ok := c.recent[id]; ok {
			continue
		}
		if id == c.pendingNext || id == c.pendingPrev {
			continue
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		// Everything is recent; a small pool loops rather than starves.
		candidates = c.pool
	}
	if c.rand != nil {
		return candidates[c.rand.Intn(len(candidates))]
	}
	return candidates[rand.Intn(len(candidates))] // #nosec G404 -- feed shuffle, not security
}

var _ CandidateProvider = (*Catalog)(nil)

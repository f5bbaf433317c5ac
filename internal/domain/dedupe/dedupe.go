// Package dedupe tracks pulse IDs already known to be imported.
//
// The authoritative duplicate check is the repository's ticket-count query;
// this cache only remembers positive answers (pulse imported, or import
// reached ticket attachment) so repeated runs in one process skip the remote
// query. A failed or ticketless import is never cached, preserving the
// repository query as the source of truth.
package dedupe

import (
	"container/list"
	"sync"
)

// SeenCache answers "was this pulse already imported?" from local memory.
type SeenCache interface {
	// Seen reports whether id was previously marked imported.
	Seen(id string) bool

	// Mark records id as imported. Call only after the repository confirmed
	// the pulse (count query hit, or ticket attachment succeeded).
	Mark(id string)

	Size() int
}

// seenCache is a bounded LRU of pulse IDs. Zero or negative capacity means
// unbounded.
type seenCache struct {
	mu    sync.Mutex
	cap   int
	order *list.List               // most recently marked at front
	ids   map[string]*list.Element // id -> element
}

// Option applies a configuration option to the seen cache.
type Option func(*seenCache)

// WithMaxSize bounds the number of pulse IDs kept in memory.
func WithMaxSize(maxSize int) Option {
	return func(c *seenCache) {
		c.cap = maxSize
	}
}

// NewSeenCache creates an in-memory seen cache.
func NewSeenCache(opts ...Option) SeenCache {
	c := &seenCache{
		cap:   50000,
		order: list.New(),
		ids:   make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *seenCache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.ids[id]
	if ok {
		c.order.MoveToFront(el)
	}
	return ok
}

func (c *seenCache) Mark(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.ids[id]; ok {
		c.order.MoveToFront(el)
		return
	}
	c.ids[id] = c.order.PushFront(id)

	if c.cap <= 0 {
		return
	}
	for c.order.Len() > c.cap {
		tail := c.order.Back()
		if tail == nil {
			break
		}
		c.order.Remove(tail)
		delete(c.ids, tail.Value.(string))
	}
}

func (c *seenCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

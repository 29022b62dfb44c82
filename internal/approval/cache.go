// Package approval holds operator-previewed messages until the next
// dispatch cycle consumes them. At most one message per destination.
package approval

import (
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("no pending message for destination")

// Pending is a cached message and when it was approved.
type Pending struct {
	Message    string    `json:"message"`
	ApprovedAt time.Time `json:"approved_at"`
}

// Cache is process-local; it is intentionally not persisted.
type Cache struct {
	mu sync.Mutex
	m  map[string]Pending
}

func New() *Cache {
	return &Cache{m: map[string]Pending{}}
}

// Set stores msg for id, replacing any pending message.
func (c *Cache) Set(id, msg string) {
	c.mu.Lock()
	c.m[id] = Pending{Message: msg, ApprovedAt: time.Now()}
	c.mu.Unlock()
}

// Take removes and returns the pending message for id. A taken entry is
// never observed again.
func (c *Cache) Take(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[id]
	if !ok {
		return "", false
	}
	delete(c.m, id)
	return p.Message, true
}

// Discard drops the pending message without consuming it.
func (c *Cache) Discard(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[id]; !ok {
		return ErrNotFound
	}
	delete(c.m, id)
	return nil
}

func (c *Cache) Peek(id string) (Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[id]
	return p, ok
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

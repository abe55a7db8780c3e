// Package idcache holds the per-calculation concept identity state shared by
// concurrently resolving hierarchy branches.
package idcache

import (
	"regexp"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

var reAxiomID = regexp.MustCompile(`:(-?\d{1,18})\b`)

// Cache maps concept ids to display names and hands out placeholder ids for
// concepts that do not exist yet.
//
// A Cache lives for exactly one calculation. All methods are safe for
// concurrent use; placeholder allocation is serialized so ids are unique
// within the calculation.
type Cache struct {
	mu    sync.Mutex
	names map[string]string
	next  int64

	memo  map[string]any
	group singleflight.Group
}

// New creates an empty cache whose first placeholder id is -1.
func New() *Cache {
	return &Cache{
		names: make(map[string]string),
		memo:  make(map[string]any),
		next:  -1,
	}
}

// Put records the display name of a concept. Empty names are ignored.
func (c *Cache) Put(id, name string) {
	if id == "" || name == "" {
		return
	}
	c.mu.Lock()
	c.names[id] = name
	c.mu.Unlock()
}

// Name returns the cached display name of id.
func (c *Cache) Name(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.names[id]
	return name, ok
}

// NextPlaceholder allocates the next placeholder id. Every call returns an
// id strictly smaller than all ids returned before.
func (c *Cache) NextPlaceholder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next--
	return strconv.FormatInt(id, 10)
}

// LastPlaceholder returns the most recently allocated placeholder id, or ""
// if none has been handed out.
func (c *Cache) LastPlaceholder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next == -1 {
		return ""
	}
	return strconv.FormatInt(c.next+1, 10)
}

// SubstituteNames replaces every concept id reference (":<id>") in an axiom
// expression with the cached name of that concept. Unknown ids are left as
// they are.
func (c *Cache) SubstituteNames(axiom string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return reAxiomID.ReplaceAllStringFunc(axiom, func(match string) string {
		name, ok := c.names[match[1:]]
		if !ok {
			return match
		}
		return ":|" + name + "|"
	})
}

// Remember runs fn once per key for the lifetime of the cache. Concurrent
// callers with the same key wait for the first call and share its result.
// Failed calls are not remembered.
func (c *Cache) Remember(key string, fn func() (any, error)) (any, error) {
	c.mu.Lock()
	if v, ok := c.memo[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		if v, ok := c.memo[key]; ok {
			c.mu.Unlock()
			return v, nil
		}
		c.mu.Unlock()

		v, err := fn()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.memo[key] = v
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

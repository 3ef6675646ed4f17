package scrape

import (
	"sync"
	"time"

	"github.com/augmentalis/uiscout/api/schemas"
)

// ephemeralCache tracks sightings of elements classified as ephemeral.
// These never reach durable storage unless repeated reappearance promotes
// them, so the cache is the only memory the promotion rule has. Entries
// expire after the configured TTL.
type ephemeralCache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[schemas.Hash]*sighting

	// now is swappable for tests.
	now func() time.Time
}

type sighting struct {
	count    int
	lastSeen time.Time
}

func newEphemeralCache(ttl time.Duration) *ephemeralCache {
	return &ephemeralCache{
		ttl: ttl,
		m:   make(map[schemas.Hash]*sighting),
		now: time.Now,
	}
}

// Note records one sighting and returns the updated count. Expired entries
// restart from one.
func (c *ephemeralCache) Note(hash schemas.Hash) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s, ok := c.m[hash]
	if !ok || (c.ttl > 0 && now.Sub(s.lastSeen) > c.ttl) {
		s = &sighting{}
		c.m[hash] = s
	}
	s.count++
	s.lastSeen = now
	return s.count
}

// Forget drops a hash, used once an element has been promoted.
func (c *ephemeralCache) Forget(hash schemas.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, hash)
}

package vectorstore

import (
	"context"
	"sync"
	"time"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// catalogTTL bounds how long cached version and tag listings are served
// before the backend is consulted again.
const catalogTTL = 60 * time.Second

// catalogCache caches the distinct versions and tags of a collection.
// Writes must call invalidate.
type catalogCache struct {
	mu       sync.Mutex
	expires  time.Time
	versions []string
	tags     []string
	valid    bool
}

// get returns the cached listings, refreshing via the supplied function when
// the cache is stale.
func (c *catalogCache) get(ctx context.Context, refresh func(context.Context) ([]string, []string, error)) ([]string, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && timeNow().Before(c.expires) {
		return c.versions, c.tags, nil
	}

	versions, tags, err := refresh(ctx)
	if err != nil {
		return nil, nil, err
	}

	c.versions = versions
	c.tags = tags
	c.expires = timeNow().Add(catalogTTL)
	c.valid = true
	return versions, tags, nil
}

// invalidate discards the cached listings.
func (c *catalogCache) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

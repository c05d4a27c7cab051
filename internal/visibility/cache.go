// Package visibility caches repository-visibility facts for policy
// evaluation. Entries expire after a fixed TTL; refresh is lazy and
// coalesced per repository, so readers of one key never block behind a
// refresh of another.
package visibility

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tokex-dev/tokex/internal/core"
)

// DefaultTTL is how long a fetched visibility value remains usable.
const DefaultTTL = time.Hour

// Source fetches the visibility of one repository from the upstream
// platform. A failing Source is a hard error for the caller: the result
// is never guessed and never cached.
type Source func(ctx context.Context, repository string) (string, error)

type entry struct {
	visibility string
	fetchedAt  time.Time
}

// Cache is a process-wide visibility cache. Created empty, populated
// lazily, never persisted.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group
}

var _ core.VisibilityResolver = (*Cache)(nil)

func New(source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Visibility returns the cached visibility for the repository, fetching it
// if absent or older than the TTL. Concurrent misses for the same
// repository share one fetch.
func (c *Cache) Visibility(ctx context.Context, repository string) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[repository]
	c.mu.Unlock()
	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		return e.visibility, nil
	}

	ch := c.group.DoChan(repository, func() (any, error) {
		// detached from the caller: an abandoned call must not cancel a
		// fetch other callers are waiting on
		vis, err := c.source(context.WithoutCancel(ctx), repository)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[repository] = entry{visibility: vis, fetchedAt: c.now()}
		c.mu.Unlock()
		return vis, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

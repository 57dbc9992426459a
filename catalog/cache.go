package catalog

import (
	"fmt"
	"time"

	"github.com/garyburd/redigo/redis"
)

// TagCache fronts tag-list lookups with a Redis-backed cache, matching
// the teacher's use of garyburd/redigo for its repository tag cache. It
// is an optional accelerator whose methods talk only to Redis: Get
// reports a miss on any Redis error, and the SQLite fallback lives in the
// caller (handleTags), which also skips the cache when none is configured.
type TagCache struct {
	pool *redis.Pool
	ttl  time.Duration
}

// NewTagCache constructs a TagCache dialing addr lazily through a pooled
// connection, matching redigo's documented pool-per-process usage.
func NewTagCache(addr string, ttl time.Duration) *TagCache {
	return &TagCache{
		pool: &redis.Pool{
			MaxIdle:     8,
			IdleTimeout: 4 * time.Minute,
			Dial:        func() (redis.Conn, error) { return redis.Dial("tcp", addr) },
		},
		ttl: ttl,
	}
}

func cacheKey(repo string) string { return "tags:" + repo }

// Invalidate drops the cached tag list for repo, called after every
// successful manifest PUT or DELETE so the next list request repopulates
// from SQLite.
func (c *TagCache) Invalidate(repo string) error {
	conn := c.pool.Get()
	defer conn.Close()
	_, err := conn.Do("DEL", cacheKey(repo))
	if err != nil {
		return fmt.Errorf("catalog: invalidating tag cache: %w", err)
	}
	return nil
}

// Get returns the cached tag list for repo, if present.
func (c *TagCache) Get(repo string) ([]string, bool) {
	conn := c.pool.Get()
	defer conn.Close()
	tags, err := redis.Strings(conn.Do("LRANGE", cacheKey(repo), 0, -1))
	if err != nil || len(tags) == 0 {
		return nil, false
	}
	return tags, true
}

// Set populates the cached tag list for repo with a fixed expiry.
func (c *TagCache) Set(repo string, tags []string) error {
	conn := c.pool.Get()
	defer conn.Close()
	if err := conn.Send("DEL", cacheKey(repo)); err != nil {
		return err
	}
	for _, t := range tags {
		if err := conn.Send("RPUSH", cacheKey(repo), t); err != nil {
			return err
		}
	}
	if err := conn.Send("EXPIRE", cacheKey(repo), int(c.ttl.Seconds())); err != nil {
		return err
	}
	return conn.Flush()
}

// Close releases the underlying connection pool.
func (c *TagCache) Close() error {
	return c.pool.Close()
}

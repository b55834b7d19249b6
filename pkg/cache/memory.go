package cache

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jingkaihe/skillgarden/pkg/logger"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	defaultTTL             = time.Hour
	defaultCleanupInterval = 5 * time.Minute
)

type entry struct {
	value     any
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is a mutex-guarded in-process cache with TTL expiry, an
// optional entry cap evicting the oldest inserted key, and a background
// sweeper for expired entries.
type MemoryCache struct {
	mu    sync.Mutex
	store *orderedmap.OrderedMap[string, *entry]

	defaultTTL      time.Duration
	maxSize         int
	cleanupInterval time.Duration
	now             func() time.Time

	hits, misses, sets, deletes, evictions int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

// Option configures a MemoryCache
type Option func(*MemoryCache)

// WithDefaultTTL sets the TTL applied when Set is called with DefaultTTL
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *MemoryCache) {
		c.defaultTTL = ttl
	}
}

// WithMaxSize caps the number of entries; zero or below means unlimited
func WithMaxSize(n int) Option {
	return func(c *MemoryCache) {
		c.maxSize = n
	}
}

// WithCleanupInterval sets how often the background sweeper runs
func WithCleanupInterval(d time.Duration) Option {
	return func(c *MemoryCache) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// WithClock replaces the time source, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// NewMemoryCache creates an empty cache. Call Start to run the sweeper and
// Close to stop it.
func NewMemoryCache(opts ...Option) *MemoryCache {
	c := &MemoryCache{
		store:           orderedmap.New[string, *entry](),
		defaultTTL:      defaultTTL,
		cleanupInterval: defaultCleanupInterval,
		now:             time.Now,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the background sweeper. It is safe to call more than once.
func (c *MemoryCache) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.sweepLoop(ctx)
}

func (c *MemoryCache) sweepLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				logger.G(ctx).WithField("removed", n).Debug("swept expired cache entries")
			}
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep removes every expired entry and returns how many were removed
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expired []string
	for pair := c.store.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.expired(now) {
			expired = append(expired, pair.Key)
		}
	}
	for _, key := range expired {
		c.store.Delete(key)
		c.evictions++
	}
	return len(expired)
}

// Get returns the value for key. Expired entries are removed on access and
// count as a miss.
func (c *MemoryCache) Get(_ context.Context, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if e.expired(c.now()) {
		c.store.Delete(key)
		c.misses++
		c.evictions++
		return nil, false
	}

	c.hits++
	return e.value, true
}

// Set stores value under key. Overwriting a key keeps its insertion slot.
func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) {
	if ttl == DefaultTTL {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	if _, exists := c.store.Get(key); !exists && c.maxSize > 0 && c.store.Len() >= c.maxSize {
		if oldest := c.store.Oldest(); oldest != nil {
			c.store.Delete(oldest.Key)
			c.evictions++
		}
	}

	c.store.Set(key, e)
	c.sets++
}

// Delete removes key and reports whether it was present
func (c *MemoryCache) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.store.Delete(key); !ok {
		return false
	}
	c.deletes++
	return true
}

// Exists reports whether key holds an unexpired value. It does not touch the
// hit/miss counters.
func (c *MemoryCache) Exists(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store.Get(key)
	if !ok {
		return false
	}
	if e.expired(c.now()) {
		c.store.Delete(key)
		c.evictions++
		return false
	}
	return true
}

// Clear drops all entries. Counters are kept.
func (c *MemoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = orderedmap.New[string, *entry]()
}

// Stats returns a snapshot of the cache counters
func (c *MemoryCache) Stats(_ context.Context) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = math.Round(float64(c.hits)/float64(total)*100*100) / 100
	}

	return Stats{
		Size:      c.store.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Sets:      c.sets,
		Deletes:   c.deletes,
		Evictions: c.evictions,
		HitRate:   hitRate,
	}
}

// Close stops the sweeper if it was started
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if started {
			<-c.done
		}
	})
	return nil
}

var _ Backend = (*MemoryCache)(nil)

// Package modelcache keeps loaded model handles in memory, loading each from
// the artifact store on first use.
//
// Per model id an entry is absent, loading or ready. Concurrent Get calls
// for a model that is loading share the single in-flight load and receive
// the same handle. A failed load leaves the model absent so the next Get
// retries. Only ready entries are ever evicted.
package modelcache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/vigil/internal/artifact"
	"github.com/roach88/vigil/internal/model"
)

// DefaultFetchTimeout bounds a single artifact fetch.
const DefaultFetchTimeout = 60 * time.Second

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the number of ready handles, evicting the least
// recently used. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger for load and eviction events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

type entry struct {
	modelID string
	handle  *model.Handle
}

// Cache maps model ids to loaded handles. Safe for concurrent use.
type Cache struct {
	store        artifact.Store
	maxEntries   int
	fetchTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	entries map[string]*list.Element // value is *entry
	lru     *list.List               // front is most recently used
	flight  singleflight.Group
}

// New creates a cache backed by store.
func New(store artifact.Store, opts ...Option) *Cache {
	c := &Cache{
		store:        store,
		fetchTimeout: DefaultFetchTimeout,
		logger:       slog.Default(),
		entries:      make(map[string]*list.Element),
		lru:          list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the handle for modelID, loading it if absent.
//
// The load runs detached from ctx so that one caller giving up does not fail
// the others waiting on it; ctx only bounds how long this caller waits.
func (c *Cache) Get(ctx context.Context, modelID string) (*model.Handle, error) {
	if h, ok := c.lookup(modelID); ok {
		cacheRequests.WithLabelValues("hit").Inc()
		return h, nil
	}
	cacheRequests.WithLabelValues("miss").Inc()

	ch := c.flight.DoChan(modelID, func() (any, error) {
		// A load that finished between lookup and DoChan already cached it.
		if h, ok := c.lookup(modelID); ok {
			return h, nil
		}
		return c.load(context.WithoutCancel(ctx), modelID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Handle), nil
	}
}

func (c *Cache) lookup(modelID string) (*model.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[modelID]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(*entry).handle, true
}

func (c *Cache) load(ctx context.Context, modelID string) (*model.Handle, error) {
	start := time.Now()
	c.logger.Info("loading model artifact", "model", modelID, "key", artifact.ModelKey(modelID))

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	h, err := c.fetchAndDecode(fetchCtx, modelID)
	cacheLoadDuration.Observe(time.Since(start).Seconds())
	cacheLoads.WithLabelValues(loadResult(err)).Inc()
	if err != nil {
		le := &LoadError{ModelID: modelID, Err: err}
		c.logger.Warn("model load failed", "model", modelID, "transient", le.Transient(), "error", err)
		return nil, le
	}

	c.insert(modelID, h)
	c.logger.Info("model loaded", "model", modelID, "statements", len(h.Statements),
		"duration", time.Since(start))
	return h, nil
}

func (c *Cache) fetchAndDecode(ctx context.Context, modelID string) (*model.Handle, error) {
	data, err := c.store.Fetch(ctx, artifact.ModelKey(modelID))
	if err != nil {
		return nil, err
	}
	return model.Decode(modelID, data)
}

func (c *Cache) insert(modelID string, h *model.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[modelID]; ok {
		el.Value.(*entry).handle = h
		c.lru.MoveToFront(el)
		return
	}
	c.entries[modelID] = c.lru.PushFront(&entry{modelID: modelID, handle: h})

	for c.maxEntries > 0 && c.lru.Len() > c.maxEntries {
		oldest := c.lru.Back()
		c.removeLocked(oldest.Value.(*entry).modelID, oldest)
		c.logger.Info("evicted model handle", "model", oldest.Value.(*entry).modelID)
	}
	cacheEntries.Set(float64(c.lru.Len()))
}

// Evict drops the ready handle for modelID, if any. A load in flight is not
// affected. Reports whether a handle was dropped.
func (c *Cache) Evict(modelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[modelID]
	if !ok {
		return false
	}
	c.removeLocked(modelID, el)
	cacheEntries.Set(float64(c.lru.Len()))
	return true
}

func (c *Cache) removeLocked(modelID string, el *list.Element) {
	c.lru.Remove(el)
	delete(c.entries, modelID)
	cacheEvictions.Inc()
}

// Len returns the number of ready handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Models returns the ids of ready handles, most recently used first.
func (c *Cache) Models() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Value.(*entry).modelID)
	}
	return ids
}

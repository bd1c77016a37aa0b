package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RecordCache holds recently read security records for the gate.
// Cached copies never carry the password hash. All methods are best
// effort: a cache failure degrades to a store read.
type RecordCache interface {
	Get(ctx context.Context, id string) (*SecurityRecord, bool)
	Set(ctx context.Context, rec *SecurityRecord)
	Invalidate(ctx context.Context, id string)
}

// CachedRecordReader reads through a RecordCache. Concurrent misses for
// the same ID share one store read.
//
// A fill only lands if no Invalidate ran since its store read began, so a
// record read before a revocation cannot be cached after it.
type CachedRecordReader struct {
	store RecordReader
	cache RecordCache
	group singleflight.Group

	mu  sync.RWMutex // held for writing only to bump gen
	gen uint64
}

// NewCachedRecordReader wraps store with cache.
func NewCachedRecordReader(store RecordReader, cache RecordCache) *CachedRecordReader {
	return &CachedRecordReader{store: store, cache: cache}
}

// GetByID returns the cached record or loads and caches it.
func (c *CachedRecordReader) GetByID(ctx context.Context, id string) (*SecurityRecord, error) {
	if rec, ok := c.cache.Get(ctx, id); ok {
		return rec, nil
	}

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	// Callers arriving after an Invalidate start a new flight.
	key := id + "@" + strconv.FormatUint(gen, 10)
	v, err, _ := c.group.Do(key, func() (any, error) {
		rec, err := c.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.RLock()
		if c.gen == gen {
			c.cache.Set(ctx, rec)
		}
		c.mu.RUnlock()
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SecurityRecord).Clone(), nil //nolint:forcetypeassert // only *SecurityRecord is stored
}

// Invalidate drops id from the cache and discards fills already in flight.
func (c *CachedRecordReader) Invalidate(ctx context.Context, id string) {
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
	c.cache.Invalidate(ctx, id)
}

func cacheCopy(rec *SecurityRecord) *SecurityRecord {
	c := rec.Clone()
	c.PasswordHash = ""
	return c
}

// MemoryRecordCache is a per-process TTL cache.
type MemoryRecordCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

type memoryCacheEntry struct {
	rec     *SecurityRecord
	expires time.Time
}

// NewMemoryRecordCache creates a cache whose entries live for ttl.
func NewMemoryRecordCache(ttl time.Duration) *MemoryRecordCache {
	return &MemoryRecordCache{ttl: ttl, entries: make(map[string]memoryCacheEntry), now: time.Now}
}

// Get returns a live entry.
func (c *MemoryRecordCache) Get(_ context.Context, id string) (*SecurityRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, id)
		return nil, false
	}
	return e.rec.Clone(), true
}

// Set stores rec until now+ttl. Expired entries are swept on the way.
func (c *MemoryRecordCache) Set(_ context.Context, rec *SecurityRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, id)
		}
	}
	c.entries[rec.ID] = memoryCacheEntry{rec: cacheCopy(rec), expires: now.Add(c.ttl)}
}

// Invalidate removes id.
func (c *MemoryRecordCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// RedisRecordCache shares cached records between instances.
type RedisRecordCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisRecordCache creates a cache storing JSON under prefix+"record:"+id.
func NewRedisRecordCache(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisRecordCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisRecordCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// cachedRecord is the Redis value. SecurityRecord hides Revision from JSON.
type cachedRecord struct {
	SecurityRecord
	Revision int64 `json:"revision"`
}

const redisTombstone = "invalidated"

func (c *RedisRecordCache) key(id string) string {
	return c.prefix + "record:" + id
}

// Get reads and decodes an entry.
func (c *RedisRecordCache) Get(ctx context.Context, id string) (*SecurityRecord, bool) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("record cache read failed", "user_id", id, "error", err)
		return nil, false
	}
	if string(data) == redisTombstone {
		return nil, false
	}

	var cr cachedRecord
	if err := json.Unmarshal(data, &cr); err != nil {
		c.logger.Warn("record cache entry unreadable", "user_id", id, "error", err)
		return nil, false
	}
	rec := cr.SecurityRecord
	rec.Revision = cr.Revision
	return &rec, true
}

// Set writes rec with the configured TTL unless the key already holds an
// entry or a tombstone.
func (c *RedisRecordCache) Set(ctx context.Context, rec *SecurityRecord) {
	cp := cacheCopy(rec)
	data, err := json.Marshal(cachedRecord{SecurityRecord: *cp, Revision: cp.Revision})
	if err != nil {
		c.logger.Warn("record cache encode failed", "user_id", rec.ID, "error", err)
		return
	}
	if err := c.client.SetNX(ctx, c.key(rec.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("record cache write failed", "user_id", rec.ID, "error", err)
	}
}

// Invalidate replaces the entry with a tombstone for one TTL. Another
// instance's fill that read the store before the change cannot land over it.
func (c *RedisRecordCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Set(ctx, c.key(id), redisTombstone, c.ttl).Err(); err != nil {
		c.logger.Warn("record cache invalidate failed", "user_id", id, "error", err)
	}
}

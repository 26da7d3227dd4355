package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"

	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

// ListCache stores List results per organization.
type ListCache interface {
	Get(ctx context.Context, parentID string) ([]domain.Record, bool, error)
	Set(ctx context.Context, parentID string, records []domain.Record) error
	Invalidate(ctx context.Context, parentID string) error
	Flush(ctx context.Context) error
}

// MemoryCache keeps lists in process memory.
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache returns a cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{cache: gocache.New(ttl, 2*ttl)}
}

// Get implements ListCache. Returned records are copies.
func (m *MemoryCache) Get(_ context.Context, parentID string) ([]domain.Record, bool, error) {
	v, ok := m.cache.Get(parentID)
	if !ok {
		return nil, false, nil
	}
	records, ok := v.([]domain.Record)
	if !ok {
		m.cache.Delete(parentID)
		return nil, false, nil
	}
	return cloneRecords(records), true, nil
}

// Set implements ListCache.
func (m *MemoryCache) Set(_ context.Context, parentID string, records []domain.Record) error {
	m.cache.SetDefault(parentID, cloneRecords(records))
	return nil
}

// Invalidate implements ListCache.
func (m *MemoryCache) Invalidate(_ context.Context, parentID string) error {
	m.cache.Delete(parentID)
	return nil
}

// Flush implements ListCache.
func (m *MemoryCache) Flush(context.Context) error {
	m.cache.Flush()
	return nil
}

// RedisCache stores lists as JSON under a key prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache uses client with keys "<prefix>:<parentID>".
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "fpoadmin:records"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) key(parentID string) string { return r.prefix + ":" + parentID }

// Get implements ListCache.
func (r *RedisCache) Get(ctx context.Context, parentID string) ([]domain.Record, bool, error) {
	raw, err := r.client.Get(ctx, r.key(parentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var records []domain.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false, err
	}
	return records, true, nil
}

// Set implements ListCache.
func (r *RedisCache) Set(ctx context.Context, parentID string, records []domain.Record) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(parentID), raw, r.ttl).Err()
}

// Invalidate implements ListCache.
func (r *RedisCache) Invalidate(ctx context.Context, parentID string) error {
	return r.client.Del(ctx, r.key(parentID)).Err()
}

// Flush deletes every key under the prefix.
func (r *RedisCache) Flush(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Cached decorates a gateway with a list cache. Cache failures are logged
// and treated as misses.
type Cached struct {
	next   domain.Gateway
	cache  ListCache
	logger Logger
}

var _ domain.Gateway = (*Cached)(nil)

// Logger is the subset of the application logger the gateway uses.
type Logger interface {
	Warn(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// NewCached wraps next. A nil logger discards cache warnings.
func NewCached(next domain.Gateway, cache ListCache, logger Logger) *Cached {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Cached{next: next, cache: cache, logger: logger}
}

// Create implements domain.Gateway.
func (c *Cached) Create(ctx context.Context, category attribute.Category, parentID string, details attribute.Bag) (string, error) {
	id, err := c.next.Create(ctx, category, parentID, details)
	if err == nil {
		c.invalidate(ctx, parentID)
	}
	return id, err
}

// Update implements domain.Gateway. Without a parent_id identifier the
// owning organization is unknown and the whole cache is flushed.
func (c *Cached) Update(ctx context.Context, recordID string, changes domain.ChangeSet) error {
	err := c.next.Update(ctx, recordID, changes)
	if err != nil {
		return err
	}
	if pid := changes.ParentID(); pid != "" {
		c.invalidate(ctx, pid)
	} else {
		c.flush(ctx)
	}
	return nil
}

// List implements domain.Gateway.
func (c *Cached) List(ctx context.Context, parentID string) ([]domain.Record, error) {
	records, ok, err := c.cache.Get(ctx, parentID)
	if err != nil {
		c.logger.Warn("record cache read failed", "parent_id", parentID, "error", err)
	}
	if ok {
		return records, nil
	}
	records, err = c.next.List(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, parentID, records); err != nil {
		c.logger.Warn("record cache write failed", "parent_id", parentID, "error", err)
	}
	return records, nil
}

// Delete implements domain.Gateway.
func (c *Cached) Delete(ctx context.Context, recordID string) error {
	if err := c.next.Delete(ctx, recordID); err != nil {
		return err
	}
	c.flush(ctx)
	return nil
}

func (c *Cached) invalidate(ctx context.Context, parentID string) {
	if err := c.cache.Invalidate(ctx, parentID); err != nil {
		c.logger.Warn("record cache invalidate failed", "parent_id", parentID, "error", err)
	}
}

func (c *Cached) flush(ctx context.Context) {
	if err := c.cache.Flush(ctx); err != nil {
		c.logger.Warn("record cache flush failed", "error", err)
	}
}

func cloneRecords(in []domain.Record) []domain.Record {
	out := make([]domain.Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

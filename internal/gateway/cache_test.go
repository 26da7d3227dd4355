package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpoadmin/internal/core"
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

type countingGateway struct {
	domain.Gateway
	mu    sync.Mutex
	lists map[string]int
}

func (c *countingGateway) List(ctx context.Context, parentID string) ([]domain.Record, error) {
	c.mu.Lock()
	c.lists[parentID]++
	c.mu.Unlock()
	return c.Gateway.List(ctx, parentID)
}

func (c *countingGateway) count(parentID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists[parentID]
}

func newCounting() *countingGateway {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	return &countingGateway{Gateway: NewLocal(svc), lists: map[string]int{}}
}

func desk(name string) attribute.Bag {
	return attribute.BagOf("name", name, "quantity", 1, "condition", "good", "is_functional", true)
}

type warnRecorder struct {
	mu    sync.Mutex
	warns []string
}

func (w *warnRecorder) Warn(msg string, _ ...any) {
	w.mu.Lock()
	w.warns = append(w.warns, msg)
	w.mu.Unlock()
}

func TestCachedListInvalidation(t *testing.T) {
	ctx := context.Background()
	next := newCounting()
	gw := NewCached(next, NewMemoryCache(time.Minute), nil)

	id, err := gw.Create(ctx, attribute.OfficeEquipment, "org-1", desk("Desk"))
	require.NoError(t, err)
	_, err = gw.Create(ctx, attribute.OfficeEquipment, "org-2", desk("Lamp"))
	require.NoError(t, err)

	for range 3 {
		records, err := gw.List(ctx, "org-1")
		require.NoError(t, err)
		require.Len(t, records, 1)
	}
	assert.Equal(t, 1, next.count("org-1"))

	records, _ := gw.List(ctx, "org-1")
	records[0].Attributes.Set("name", "mutated")
	again, _ := gw.List(ctx, "org-1")
	name, _ := again[0].Attributes.Get("name")
	assert.Equal(t, "Desk", name)

	_, err = gw.List(ctx, "org-2")
	require.NoError(t, err)

	cs := domain.ChangeSet{
		IdentifierFields: attribute.BagOf(domain.FieldID, id, domain.FieldParentID, "org-1"),
		ChangedFields:    attribute.BagOf("quantity", 3),
	}
	require.NoError(t, gw.Update(ctx, id, cs))
	records, err = gw.List(ctx, "org-1")
	require.NoError(t, err)
	q, _ := records[0].Attributes.Get("quantity")
	assert.EqualValues(t, 3, q)
	assert.Equal(t, 2, next.count("org-1"))

	_, _ = gw.List(ctx, "org-2")
	assert.Equal(t, 1, next.count("org-2"))

	require.NoError(t, gw.Delete(ctx, id))
	records, err = gw.List(ctx, "org-1")
	require.NoError(t, err)
	assert.Empty(t, records)
	_, _ = gw.List(ctx, "org-2")
	assert.Equal(t, 2, next.count("org-2"))
}

func TestCachedFailedWritesKeepCache(t *testing.T) {
	ctx := context.Background()
	next := newCounting()
	gw := NewCached(next, NewMemoryCache(time.Minute), nil)

	_, err := gw.List(ctx, "org-1")
	require.NoError(t, err)
	_, err = gw.Create(ctx, attribute.OfficeEquipment, "org-1", attribute.BagOf("colour", "red"))
	require.Error(t, err)
	require.Error(t, gw.Delete(ctx, "missing"))
	_, _ = gw.List(ctx, "org-1")
	assert.Equal(t, 1, next.count("org-1"))
}

func TestCachedDegradesWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	next := newCounting()
	warns := &warnRecorder{}
	gw := NewCached(next, NewRedisCache(client, "", time.Minute), warns)

	_, err := gw.Create(ctx, attribute.OfficeEquipment, "org-1", desk("Desk"))
	require.NoError(t, err)
	records, err := gw.List(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, next.count("org-1"))

	warns.mu.Lock()
	defer warns.mu.Unlock()
	assert.Contains(t, warns.warns, "record cache read failed")
	assert.Contains(t, warns.warns, "record cache write failed")
}

func TestRedisCacheKeys(t *testing.T) {
	c := NewRedisCache(nil, "", time.Minute)
	assert.Equal(t, "fpoadmin:records:org-1", c.key("org-1"))
	assert.Equal(t, "x:org-1", NewRedisCache(nil, "x", 0).key("org-1"))
}

func TestLocalGateway(t *testing.T) {
	ctx := context.Background()
	gw := NewLocal(core.NewInMemoryService(core.NewDefaultRulesEngine()))

	id, err := gw.Create(ctx, attribute.ActivityFacility, "org-1",
		attribute.BagOf("name", "Grading", "activity_type", "processing"))
	require.NoError(t, err)

	err = gw.Update(ctx, id, domain.ChangeSet{
		IdentifierFields: attribute.BagOf(domain.FieldID, id, domain.FieldParentID, "org-2"),
		ChangedFields:    attribute.BagOf("capacity", 10),
	})
	require.ErrorIs(t, err, domain.ErrMalformedChangeSet)

	err = gw.Update(ctx, id, domain.ChangeSet{
		IdentifierFields: attribute.BagOf(domain.FieldID, id),
		ChangedFields:    attribute.BagOf("activity_type", "juggling"),
	})
	require.ErrorIs(t, err, attribute.ErrSchemaViolation)

	records, err := gw.List(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	at, _ := records[0].Attributes.Get("activity_type")
	assert.Equal(t, "processing", at)

	require.NoError(t, gw.Delete(ctx, id))
	require.ErrorIs(t, gw.Delete(ctx, id), domain.ErrNotFound)
}

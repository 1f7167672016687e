package resolve

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propertydigital/pdimport/internal/state"
	"github.com/propertydigital/pdimport/internal/testutil"
	"github.com/propertydigital/pdimport/pkg/core"
)

// fakeFetcher serves canned entities and records call counts per batch.
type fakeFetcher struct {
	mu       sync.Mutex
	entities map[string]core.Entity
	calls    int
	batches  [][]string
	failFor  map[string]int // id -> number of failures before success
	inflight int32
	maxSeen  int32
}

func (f *fakeFetcher) FetchBatch(_ context.Context, _ string, ids []string) (map[string]core.Entity, error) {
	cur := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, ids)

	out := make(map[string]core.Entity)
	for _, id := range ids {
		if remaining, ok := f.failFor[id]; ok && remaining > 0 {
			f.failFor[id] = remaining - 1
			return nil, errors.New("upstream unavailable")
		}
		if e, ok := f.entities[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func newTestResolver(t *testing.T, fetcher Fetcher, cfg Config) *Resolver {
	t.Helper()
	r := New(cfg, nil, fetcher, testutil.NewTestLogger(t))
	require.NoError(t, r.Initialize(context.Background()))
	return r
}

func TestResolver_SecondCallHitsCache(t *testing.T) {
	fetcher := &fakeFetcher{entities: map[string]core.Entity{
		"t-1": {"full_name": "דני"},
		"t-2": {"full_name": "רות"},
	}}
	r := newTestResolver(t, fetcher, Config{})

	ctx := context.Background()
	first, err := r.Resolve(ctx, "tenants", []string{"t-1", "t-2"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, fetcher.calls)

	// Identical second call: answered entirely from memory, no network.
	second, err := r.Resolve(ctx, "tenants", []string{"t-1", "t-2"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fetcher.calls)

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestResolver_DeduplicatesIDs(t *testing.T) {
	fetcher := &fakeFetcher{entities: map[string]core.Entity{"t-1": {}}}
	r := newTestResolver(t, fetcher, Config{})

	_, err := r.Resolve(context.Background(), "tenants", []string{"t-1", "t-1", "t-1", ""})
	require.NoError(t, err)
	require.Len(t, fetcher.batches, 1)
	assert.Equal(t, []string{"t-1"}, fetcher.batches[0])
}

func TestResolver_SplitsIntoSubBatches(t *testing.T) {
	entities := make(map[string]core.Entity)
	var ids []string
	for i := 0; i < 250; i++ {
		id := "p-" + strconv.Itoa(i)
		ids = append(ids, id)
		entities[id] = core.Entity{}
	}
	fetcher := &fakeFetcher{entities: entities}
	r := newTestResolver(t, fetcher, Config{BatchSize: 100, Concurrency: 2})

	result, err := r.Resolve(context.Background(), "properties", ids)
	require.NoError(t, err)
	assert.Len(t, result, 250)
	assert.Equal(t, 3, fetcher.calls)
	assert.LessOrEqual(t, fetcher.maxSeen, int32(2), "concurrency limit exceeded")
}

func TestResolver_RetriesThenSucceeds(t *testing.T) {
	fetcher := &fakeFetcher{
		entities: map[string]core.Entity{"t-1": {"full_name": "דני"}},
		failFor:  map[string]int{"t-1": 2},
	}
	r := newTestResolver(t, fetcher, Config{MaxRetries: 2, BaseDelay: time.Millisecond})

	result, err := r.Resolve(context.Background(), "tenants", []string{"t-1"})
	require.NoError(t, err)
	require.Contains(t, result, "t-1")
	assert.Equal(t, 3, fetcher.calls) // 2 failures + 1 success
}

func TestResolver_ExhaustedRetriesOmitIDs(t *testing.T) {
	fetcher := &fakeFetcher{
		entities: map[string]core.Entity{"t-1": {}},
		failFor:  map[string]int{"t-1": 10},
	}
	r := newTestResolver(t, fetcher, Config{MaxRetries: 2, BaseDelay: time.Millisecond})

	// Never an error: unresolved ids are just absent.
	result, err := r.Resolve(context.Background(), "tenants", []string{"t-1"})
	require.NoError(t, err)
	assert.Empty(t, result)
}

// TestResolver_WarmOnStart pins the durability model: durable entries are
// eagerly loaded into memory by Initialize, rather than consulted on every
// miss. A fresh resolver over the same store answers without the network.
func TestResolver_WarmOnStart(t *testing.T) {
	store := state.NewSQLiteStore()
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	defer store.Close()

	fetcher := &fakeFetcher{entities: map[string]core.Entity{"t-1": {"full_name": "דני"}}}
	first := New(Config{}, store, fetcher, testutil.NewTestLogger(t))
	require.NoError(t, first.Initialize(context.Background()))

	_, err := first.Resolve(context.Background(), "tenants", []string{"t-1"})
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls)

	// Second resolver shares the durable store; no ready flag until
	// Initialize completes.
	second := New(Config{}, store, fetcher, testutil.NewTestLogger(t))
	assert.False(t, second.Ready())
	require.NoError(t, second.Initialize(context.Background()))
	assert.True(t, second.Ready())

	result, err := second.Resolve(context.Background(), "tenants", []string{"t-1"})
	require.NoError(t, err)
	require.Contains(t, result, "t-1")
	assert.Equal(t, 1, fetcher.calls, "warm cache should answer without a network call")
}

func TestResolver_Invalidate(t *testing.T) {
	store := state.NewSQLiteStore()
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	defer store.Close()

	fetcher := &fakeFetcher{entities: map[string]core.Entity{
		"t-1": {},
		"p-1": {},
	}}
	r := New(Config{}, store, fetcher, testutil.NewTestLogger(t))
	require.NoError(t, r.Initialize(context.Background()))

	_, err := r.Resolve(context.Background(), "tenants", []string{"t-1"})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "properties", []string{"p-1"})
	require.NoError(t, err)
	calls := fetcher.calls

	// Type-scoped invalidation: tenants refetch, properties stay cached.
	require.NoError(t, r.Invalidate("tenants"))
	_, err = r.Resolve(context.Background(), "tenants", []string{"t-1"})
	require.NoError(t, err)
	assert.Equal(t, calls+1, fetcher.calls)

	_, err = r.Resolve(context.Background(), "properties", []string{"p-1"})
	require.NoError(t, err)
	assert.Equal(t, calls+1, fetcher.calls)

	// Full clear wipes durable state too.
	require.NoError(t, r.InvalidateAll())
	entries, err := store.GetAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := newMemoryCache(2)
	c.Add("t:1", core.Entity{})
	c.Add("t:2", core.Entity{})

	// Touch t:1 so t:2 is the least recently used.
	_, ok := c.Get("t:1")
	require.True(t, ok)

	c.Add("t:3", core.Entity{})
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("t:2")
	assert.False(t, ok, "t:2 should have been evicted")
	_, ok = c.Get("t:1")
	assert.True(t, ok)
}

func TestStats_HitRate(t *testing.T) {
	s := Stats{Hits: 5, Misses: 1}
	assert.Equal(t, "83.3%", s.HitRate())
	assert.Equal(t, "0.0%", Stats{}.HitRate())
}

package consolidation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheVersionIsPerTenant(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	v, err := cache.Version(ctx, "t1")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	require.NoError(t, cache.Bump(ctx, "t1"))
	v, err = cache.Version(ctx, "t1")
	require.NoError(t, err)
	require.EqualValues(t, 2, v)

	v, err = cache.Version(ctx, "t2")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	key, err := cache.BuildKey(ctx, "t1", "dashboard", "p")
	require.NoError(t, err)
	require.Equal(t, "consolidation:t1:dashboard:p:v2", key)
}

func TestCacheFetchJSONStoresWithTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	loads := 0
	loader := func(context.Context) (any, error) {
		loads++
		return Summary{TotalDemandFTE: 55}, nil
	}

	var out Summary
	hit, err := cache.FetchJSON(ctx, "k", &out, loader)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 55, out.TotalDemandFTE)
	require.Equal(t, time.Minute, mr.TTL("k"))

	out = Summary{}
	hit, err = cache.FetchJSON(ctx, "k", &out, loader)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 55, out.TotalDemandFTE)
	require.Equal(t, 1, loads)
}

func TestCacheFetchJSONCollapsesConcurrentMisses(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	var loads atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		loads.Add(1)
		<-release
		return Summary{TotalSupplyFTE: 10}, nil
	}

	var wg sync.WaitGroup
	results := make([]Summary, 4)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.FetchJSON(ctx, "shared", &results[i], loader)
		}(i)
	}
	require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, loads.Load())
	for i, r := range results {
		require.NoError(t, errs[i])
		require.Equal(t, 10, r.TotalSupplyFTE)
	}
}

func TestNilCacheRunsLoader(t *testing.T) {
	var cache *Cache
	var out Summary
	hit, err := cache.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return Summary{OrphansCount: 2}, nil
	})
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, out.OrphansCount)
	require.NoError(t, cache.Bump(context.Background(), "t1"))
}

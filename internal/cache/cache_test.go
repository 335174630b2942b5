package cache

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

	"github.com/tbourn/thread-commands/internal/clock"
)

var errStore = errors.New("store down")

// fakeLoader returns "<key>#<n>" where n counts loads of that key.
type fakeLoader struct {
	mu    sync.Mutex
	calls map[string]int
	fail  atomic.Bool
	total atomic.Int64
	gate  chan struct{} // when non-nil, loads block until it is closed or receives
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{calls: map[string]int{}}
}

func (f *fakeLoader) load(ctx context.Context, key string) (string, error) {
	f.total.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.fail.Load() {
		return "", errStore
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	return key + "#" + strconv.Itoa(f.calls[key]), nil
}

func newTestCache(t *testing.T, opts Options, l *fakeLoader) (*ScopedCache[string, string], *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	opts.Clock = fc
	c, err := New[string, string](opts, l.load)
	require.NoError(t, err)
	return c, fc
}

func TestNew_RequiresLoader(t *testing.T) {
	_, err := New[string, int](Options{}, nil)
	assert.ErrorIs(t, err, ErrNoLoader)
}

func TestGet_LoadsOnceThenHits(t *testing.T) {
	l := newFakeLoader()
	c, _ := newTestCache(t, Options{Name: "t", Capacity: 4, TTL: time.Minute}, l)
	ctx := context.Background()

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#1", v)

	v, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#1", v)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(1), s.Loads)
	assert.Equal(t, 1, s.Size)
	assert.InDelta(t, 0.5, s.HitRatio(), 1e-9)
}

func TestGet_ReloadsAfterTTL(t *testing.T) {
	l := newFakeLoader()
	c, fc := newTestCache(t, Options{Capacity: 4, TTL: time.Minute}, l)
	ctx := context.Background()

	_, _ = c.Get(ctx, "a")
	fc.Advance(59 * time.Second)
	v, _ := c.Get(ctx, "a")
	assert.Equal(t, "a#1", v, "still fresh before expiry")

	fc.Advance(time.Second)
	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#2", v, "expired entry must be reloaded")
}

func TestGet_ZeroTTLNeverExpires(t *testing.T) {
	l := newFakeLoader()
	c, fc := newTestCache(t, Options{Capacity: 4}, l)
	_, _ = c.Get(context.Background(), "a")
	fc.Advance(1000 * time.Hour)
	v, _ := c.Get(context.Background(), "a")
	assert.Equal(t, "a#1", v)
}

func TestGet_EvictsLeastRecentlyUsed(t *testing.T) {
	l := newFakeLoader()
	var evicted []any
	c, _ := newTestCache(t, Options{Capacity: 2, TTL: time.Hour, OnEvict: func(k any) { evicted = append(evicted, k) }}, l)
	ctx := context.Background()

	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "b")
	_, _ = c.Get(ctx, "a") // a is now most recent
	_, _ = c.Get(ctx, "c") // evicts b

	_, okA := c.Peek("a")
	_, okB := c.Peek("b")
	_, okC := c.Peek("c")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
	assert.Equal(t, []any{"b"}, evicted)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestGet_SingleFlight(t *testing.T) {
	l := newFakeLoader()
	l.gate = make(chan struct{})
	c, _ := newTestCache(t, Options{Capacity: 4, TTL: time.Minute}, l)

	const n = 50
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "hot")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Let the goroutines pile up on the in-flight load before releasing it.
	require.Eventually(t, func() bool { return l.total.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(l.gate)
	wg.Wait()

	assert.Equal(t, int64(1), l.total.Load(), "only one load for a cold key")
	for _, r := range results {
		assert.Equal(t, "hot#1", r)
	}
}

func TestGet_ServesStaleOnLoadError(t *testing.T) {
	l := newFakeLoader()
	c, fc := newTestCache(t, Options{Capacity: 4, TTL: time.Minute}, l)
	ctx := context.Background()

	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	fc.Advance(2 * time.Minute)
	l.fail.Store(true)
	v, err := c.Get(ctx, "a")
	require.NoError(t, err, "stale value suppresses the store error")
	assert.Equal(t, "a#1", v)
	assert.Equal(t, int64(1), c.Stats().Stale)
}

func TestGet_PropagatesErrorWithoutCachedValue(t *testing.T) {
	l := newFakeLoader()
	l.fail.Store(true)
	c, _ := newTestCache(t, Options{Capacity: 4, TTL: time.Minute}, l)

	_, err := c.Get(context.Background(), "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, errStore)
	assert.Equal(t, 0, c.Len())
}

func TestGet_CallerCancellationDoesNotAbortLoad(t *testing.T) {
	var sawCancel atomic.Bool
	c, err := New[string, string](Options{Capacity: 2}, func(ctx context.Context, key string) (string, error) {
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		return "v", nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.False(t, sawCancel.Load())
}

func TestRefresh_ReplacesEntry(t *testing.T) {
	l := newFakeLoader()
	c, _ := newTestCache(t, Options{Capacity: 4, TTL: time.Hour}, l)
	ctx := context.Background()

	_, _ = c.Get(ctx, "a")
	v, err := c.Refresh(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#2", v)

	got, _ := c.Get(ctx, "a")
	assert.Equal(t, "a#2", got, "reads after refresh observe the new value")
}

func TestRefresh_WinsOverOlderInFlightLoad(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	c, err := New[string, string](Options{Capacity: 4, TTL: time.Hour}, func(ctx context.Context, key string) (string, error) {
		if calls.Add(1) == 1 {
			<-release
			return "old", nil
		}
		return "new", nil
	})
	require.NoError(t, err)

	done := make(chan string)
	go func() {
		v, _ := c.Get(context.Background(), "k")
		done <- v
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	v, err := c.Refresh(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	close(release)
	assert.Equal(t, "old", <-done, "the slow reader began before the write")

	got, ok := c.Peek("k")
	require.True(t, ok)
	assert.Equal(t, "new", got, "older load must not overwrite the refreshed entry")
}

func TestRefresh_FailureDropsEntry(t *testing.T) {
	l := newFakeLoader()
	c, _ := newTestCache(t, Options{Capacity: 4, TTL: time.Hour}, l)
	ctx := context.Background()

	_, _ = c.Get(ctx, "a")
	l.fail.Store(true)
	_, err := c.Refresh(ctx, "a")
	require.Error(t, err)

	_, ok := c.Peek("a")
	assert.False(t, ok, "pre-write value must not survive a failed refresh")
}

func TestInvalidate_BlocksResurrectionByInFlightLoad(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	c, err := New[string, string](Options{Capacity: 4, TTL: time.Hour}, func(ctx context.Context, key string) (string, error) {
		once.Do(func() { close(started) })
		<-release
		return "loaded", nil
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = c.Get(context.Background(), "k")
		close(done)
	}()
	<-started

	c.Invalidate("k")
	close(release)
	<-done

	_, ok := c.Peek("k")
	assert.False(t, ok)
}

func TestInvalidate_RemovesEntry(t *testing.T) {
	l := newFakeLoader()
	c, _ := newTestCache(t, Options{Capacity: 4, TTL: time.Hour}, l)
	ctx := context.Background()

	_, _ = c.Get(ctx, "a")
	c.Invalidate("a")
	assert.Equal(t, 0, c.Len())

	v, _ := c.Get(ctx, "a")
	assert.Equal(t, "a#2", v)
}

func TestShardedCache_ConcurrentAccess(t *testing.T) {
	c, err := New[int, int](Options{Capacity: 256, TTL: time.Minute}, func(ctx context.Context, key int) (int, error) {
		return key * 2, nil
	})
	require.NoError(t, err)
	require.Len(t, c.shards, 8)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := (g*31 + i) % 300
				v, err := c.Get(context.Background(), k)
				if err != nil || v != k*2 {
					t.Errorf("Get(%d) = %d, %v", k, v, err)
					return
				}
				if i%50 == 0 {
					c.Invalidate(k)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8*32)
}

func TestNew_ShardCapacitiesSumToCapacity(t *testing.T) {
	c, err := New[int, int](Options{Capacity: 100, Shards: 8}, func(ctx context.Context, key int) (int, error) {
		return key, nil
	})
	require.NoError(t, err)

	sum := 0
	for _, sh := range c.shards {
		assert.GreaterOrEqual(t, sh.capacity, 1)
		sum += sh.capacity
	}
	assert.Equal(t, 100, sum)

	for k := 0; k < 1000; k++ {
		_, err := c.Get(context.Background(), k)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, c.Len(), 100)
}

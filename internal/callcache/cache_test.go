package callcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openfold/brokergate/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetcher(counter *int32, body string) FetchFunc {
	return func(ctx context.Context) (*provider.RawResult, bool, error) {
		atomic.AddInt32(counter, 1)
		return &provider.RawResult{Provider: "demo", Body: []byte(body)}, true, nil
	}
}

func TestKey_Deterministic(t *testing.T) {
	a := Key("alpaca", provider.OpGetQuote, "GET https://x/q?symbols=AAPL")
	b := Key("alpaca", provider.OpGetQuote, "GET https://x/q?symbols=AAPL")
	c := Key("alpaca", provider.OpGetQuote, "GET https://x/q?symbols=MSFT")

	if a != b {
		t.Error("identical fingerprints must produce identical keys")
	}
	if a == c {
		t.Error("different fingerprints must produce different keys")
	}
}

func TestKey_ProviderScoped(t *testing.T) {
	a := Key("alpaca", provider.OpGetQuote, "fp")
	b := Key("tradier", provider.OpGetQuote, "fp")
	if a == b {
		t.Error("keys from different providers must not collide")
	}
}

func TestGetOrFetch_HitWithinTTL(t *testing.T) {
	c := New()
	var calls int32

	r1, cached, err := c.GetOrFetch(context.Background(), "k", time.Minute, fetcher(&calls, "one"))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "one", string(r1.Body))

	r2, cached, err := c.GetOrFetch(context.Background(), "k", time.Minute, fetcher(&calls, "two"))
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "one", string(r2.Body), "second call must serve the cached payload")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestGetOrFetch_ExpiredEntryRefetches(t *testing.T) {
	now := time.Now()
	c := NewWithClock(func() time.Time { return now })
	var calls int32

	_, _, err := c.GetOrFetch(context.Background(), "k", time.Minute, fetcher(&calls, "one"))
	require.NoError(t, err)

	now = now.Add(61 * time.Second)

	r, cached, err := c.GetOrFetch(context.Background(), "k", time.Minute, fetcher(&calls, "two"))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "two", string(r.Body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_ZeroTTLBypassesCache(t *testing.T) {
	c := New()
	var calls int32

	for i := 0; i < 3; i++ {
		_, cached, err := c.GetOrFetch(context.Background(), "k", 0, fetcher(&calls, "x"))
		require.NoError(t, err)
		assert.False(t, cached)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, c.Len())
}

func TestGetOrFetch_ErrorNotCached(t *testing.T) {
	c := New()
	boom := errors.New("boom")
	var calls int32

	_, _, err := c.GetOrFetch(context.Background(), "k", time.Minute, func(ctx context.Context) (*provider.RawResult, bool, error) {
		atomic.AddInt32(&calls, 1)
		return nil, false, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len(), "a failed fetch must leave the key empty")

	// next call goes to the network again
	_, _, err = c.GetOrFetch(context.Background(), "k", time.Minute, fetcher(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_NonCacheableNotStored(t *testing.T) {
	c := New()
	var calls int32

	_, _, err := c.GetOrFetch(context.Background(), "k", time.Minute, func(ctx context.Context) (*provider.RawResult, bool, error) {
		atomic.AddInt32(&calls, 1)
		return &provider.RawResult{Body: []byte("halted")}, false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())

	_, cached, err := c.GetOrFetch(context.Background(), "k", time.Minute, fetcher(&calls, "live"))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_ConcurrentDedup(t *testing.T) {
	c := New()
	var calls int32
	release := make(chan struct{})

	slow := func(ctx context.Context) (*provider.RawResult, bool, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &provider.RawResult{Body: []byte("shared")}, true, nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]*provider.RawResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = c.GetOrFetch(context.Background(), "k", time.Minute, slow)
		}(i)
	}

	// let the goroutines pile onto the flight before releasing it
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent identical calls must share one fetch")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", string(results[i].Body))
	}
}

func TestGetOrFetch_CancelledCallerDetaches(t *testing.T) {
	c := New()
	release := make(chan struct{})

	slow := func(ctx context.Context) (*provider.RawResult, bool, error) {
		<-release
		return &provider.RawResult{Body: []byte("late")}, true, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrFetch(ctx, "k", time.Minute, slow)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return promptly")
	}
	close(release)
}

func TestGetOrFetch_WaiterSurvivesStarterCancel(t *testing.T) {
	c := New()
	started := make(chan struct{})
	release := make(chan struct{})

	starterFetch := func(ctx context.Context) (*provider.RawResult, bool, error) {
		close(started)
		select {
		case <-release:
			return &provider.RawResult{Body: []byte("shared")}, true, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	// Only runs if the waiter fails to attach to the starter's flight.
	waiterFetch := func(ctx context.Context) (*provider.RawResult, bool, error) {
		<-release
		return &provider.RawResult{Body: []byte("fresh")}, true, nil
	}

	starterCtx, cancel := context.WithCancel(context.Background())
	starterDone := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrFetch(starterCtx, "k", time.Minute, starterFetch)
		starterDone <- err
	}()
	<-started

	type outcome struct {
		res *provider.RawResult
		err error
	}
	waiterDone := make(chan outcome, 1)
	go func() {
		res, _, err := c.GetOrFetch(context.Background(), "k", time.Minute, waiterFetch)
		waiterDone <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	// The starter walks away; the flight must keep running for the
	// attached waiter.
	cancel()
	select {
	case err := <-starterDone:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled starter did not return promptly")
	}
	close(release)

	select {
	case out := <-waiterDone:
		require.NoError(t, out.err)
		assert.Equal(t, "shared", string(out.res.Body))
	case <-time.After(time.Second):
		t.Fatal("attached waiter never received the shared result")
	}
}

func TestGetOrFetch_CloneIsolation(t *testing.T) {
	c := New()
	var calls int32

	r1, _, err := c.GetOrFetch(context.Background(), "k", time.Minute, fetcher(&calls, "payload"))
	require.NoError(t, err)

	// mutating the returned body must not corrupt the stored entry
	r1.Body[0] = 'X'

	r2, cached, err := c.GetOrFetch(context.Background(), "k", time.Minute, fetcher(&calls, "other"))
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "payload", string(r2.Body))
}

func TestSweep(t *testing.T) {
	now := time.Now()
	c := NewWithClock(func() time.Time { return now })

	c.put("a", &provider.RawResult{Body: []byte("a")}, time.Minute)
	c.put("b", &provider.RawResult{Body: []byte("b")}, 5*time.Minute)
	require.Equal(t, 2, c.Len())

	now = now.Add(2 * time.Minute)

	removed := c.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
}

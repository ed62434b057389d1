package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"routemaster/internal/api"
	"routemaster/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func counting(calls *atomic.Int32, v int, err error) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		calls.Add(1)
		return v, err
	}
}

func TestQueryCache_FailureStickyUntilRefresh(t *testing.T) {
	_, _, m := testOptions()
	c := newQueryCache[string]("test", func() int { return 0 }, m)
	ctx := context.Background()
	var calls atomic.Int32

	_, err := c.load(ctx, "k", counting(&calls, 0, errBoom))
	require.ErrorIs(t, err, errBoom)
	_, err = c.load(ctx, "k", counting(&calls, 7, nil))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, int32(1), calls.Load())

	var got []int
	sub, empty := c.watch("k", func(v int) { got = append(got, v) }, nil)
	defer sub.Unsubscribe()
	assert.False(t, empty)
	assert.Empty(t, got)

	v, err := c.refresh(ctx, "k", counting(&calls, 7, nil))
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	v, err = c.load(ctx, "k", counting(&calls, 8, nil))
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups().WithLabelValues("test", metrics.ResultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups().WithLabelValues("test", metrics.ResultMiss)))
}

func TestQueryCache_RefreshErrorKeepsValue(t *testing.T) {
	_, _, m := testOptions()
	c := newQueryCache[string]("test", func() int { return 0 }, m)
	ctx := context.Background()
	var calls atomic.Int32

	_, err := c.load(ctx, "k", counting(&calls, 3, nil))
	require.NoError(t, err)
	_, err = c.refresh(ctx, "k", counting(&calls, 0, errBoom))
	require.ErrorIs(t, err, errBoom)

	v, ok := c.peek("k")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestQueryCache_TransientFailureIsRetried(t *testing.T) {
	_, _, m := testOptions()
	c := newQueryCache[string]("test", func() int { return 0 }, m)
	c.transient = true
	ctx := context.Background()
	var calls atomic.Int32

	_, err := c.load(ctx, "k", counting(&calls, 0, errBoom))
	require.ErrorIs(t, err, errBoom)
	v, err := c.load(ctx, "k", counting(&calls, 5, nil))
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueryCache_PatchOnlyTouchesReadySlots(t *testing.T) {
	_, _, m := testOptions()
	c := newQueryCache[string]("test", func() int { return 0 }, m)
	ctx := context.Background()
	var calls atomic.Int32

	_, _ = c.load(ctx, "a", counting(&calls, 1, nil))
	_, _ = c.load(ctx, "b", counting(&calls, 0, errBoom))
	_, _ = c.load(ctx, "c", counting(&calls, 10, nil))

	n := c.patch(func(k string) bool { return k != "c" }, func(_ string, v int) (int, bool) { return v + 1, true })
	assert.Equal(t, 1, n)

	a, _ := c.peek("a")
	cv, _ := c.peek("c")
	assert.Equal(t, 2, a)
	assert.Equal(t, 10, cv)
	_, ok := c.peek("b")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"a", "c"}, c.readyKeys(nil))
}

func TestFlightGroup_AbandonedFetchDoesNotSettle(t *testing.T) {
	var g flightGroup[string, int]
	started := make(chan struct{})
	var settled atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := g.do(ctx, "k", func(fctx context.Context) (int, error) {
			close(started)
			<-fctx.Done()
			return 0, canceledErr(fctx.Err())
		}, func(int, error) { settled.Store(true) })
		done <- err
	}()

	<-started
	cancel()
	err := <-done
	assert.True(t, api.IsCanceled(err))
	require.Eventually(t, func() bool { return !g.inFlight("k") }, waitFor, tick)
	assert.False(t, settled.Load())
}

func TestFlightGroup_SettleRunsBeforeWaitersReturn(t *testing.T) {
	var g flightGroup[string, int]
	release := make(chan struct{})
	var settledWith atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := g.do(context.Background(), "k", func(context.Context) (int, error) {
				<-release
				return 9, nil
			}, func(v int, _ error) { settledWith.Store(int32(v)) })
			assert.NoError(t, err)
			assert.Equal(t, 9, v)
			assert.Equal(t, int32(9), settledWith.Load())
		}()
	}
	require.Eventually(t, func() bool { return g.inFlight("k") }, waitFor, tick)
	close(release)
	wg.Wait()
}

func TestEntityCache_Partition(t *testing.T) {
	_, _, m := testOptions()
	c := newEntityCache("contacts", func(s string) string { return s }, m)
	c.merge("a", "c")

	found, missing := c.partition([]string{"a", "b", "a", "c", "d", "b"})
	assert.Equal(t, []string{"a", "c"}, found)
	assert.Equal(t, []string{"b", "d"}, missing)
}

package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/llamalend/utils/metrics"
)

func TestProcessIsolatesFailures(t *testing.T) {
	m := metrics.NewPoolMetrics("test", nil)
	p := New(3, WithLogger(zaptest.NewLogger(t)), WithMetrics(m))

	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}

	results := NewResults[int, string]()
	var handled []int
	unhandled := For(p, "items", items).
		HandleError(func(err error, item int) {
			handled = append(handled, item)
			results.PutFallback(item, "", err.Error())
		}).
		Process(context.Background(), func(ctx context.Context, item int) error {
			if item == 3 || item == 7 {
				return fmt.Errorf("item %d failed", item)
			}
			results.Put(item, fmt.Sprintf("ok-%d", item))
			return nil
		})

	assert.Empty(t, unhandled)
	assert.ElementsMatch(t, []int{3, 7}, handled)
	require.Equal(t, 10, results.Len())

	for i := 0; i < 10; i++ {
		entry, ok := results.Get(i)
		require.True(t, ok)
		if i == 3 || i == 7 {
			assert.Equal(t, fmt.Sprintf("item %d failed", i), entry.Error)
			assert.Equal(t, "", entry.Value)
			continue
		}
		assert.Equal(t, "", entry.Error)
		assert.Equal(t, fmt.Sprintf("ok-%d", i), entry.Value)
	}

	assert.Equal(t, float64(8), testutil.ToFloat64(m.Tasks.WithLabelValues("items", "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Tasks.WithLabelValues("items", "failure")))
}

func TestProcessWithoutHandler(t *testing.T) {
	p := New(2)
	var done atomic.Int32

	errs := For(p, "no-handler", []string{"a", "b", "c", "d"}).
		Process(context.Background(), func(ctx context.Context, item string) error {
			if item == "b" {
				return errors.New("boom")
			}
			done.Add(1)
			return nil
		})

	assert.Equal(t, int32(3), done.Load())
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "boom")
}

func TestProcessRespectsLimit(t *testing.T) {
	const limit = 3
	p := New(limit)

	var inFlight, peak atomic.Int32
	items := make([]int, 20)

	For(p, "bounded", items).Process(context.Background(), func(ctx context.Context, _ int) error {
		n := inFlight.Add(1)
		for {
			cur := peak.Load()
			if n <= cur || peak.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestProcessRecoversPanics(t *testing.T) {
	p := New(2)
	var caught error

	For(p, "panics", []int{1}).
		HandleError(func(err error, _ int) { caught = err }).
		Process(context.Background(), func(ctx context.Context, _ int) error {
			panic("unexpected")
		})

	require.Error(t, caught)
	assert.Contains(t, caught.Error(), "unexpected")
}

func TestProcessRateLimitCancelled(t *testing.T) {
	p := New(1, WithRateLimit(0.001, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := For(p, "limited", []int{1, 2}).Process(ctx, func(ctx context.Context, _ int) error {
		return nil
	})
	assert.NotEmpty(t, errs)
}

func TestNewDefaults(t *testing.T) {
	assert.Equal(t, DefaultConcurrency, New(0).Limit())
	assert.Equal(t, 7, New(7).Limit())
}

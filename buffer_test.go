package reelguess_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/reelguess/reelguess"
	"github.com/reelguess/reelguess/internal/testing/require"
	"github.com/reelguess/reelguess/retry"
)

type Round struct {
	ID    string
	Title string
}

type Filters struct {
	Year     int
	Language string
}

func roundID(r Round) string {
	return r.ID
}

// sequence returns a supplier producing a fresh unique round on every call.
func sequence() reelguess.SupplyFunc[Round, Filters] {
	var n atomic.Int64
	return func(ctx context.Context, _ Filters) (Round, bool, error) {
		return Round{ID: strconv.FormatInt(n.Add(1), 10)}, true, nil
	}
}

// blocked returns a supplier that never resolves until its context is
// cancelled. Each cancellation is counted.
func blocked(cancelled *atomic.Int64) reelguess.SupplyFunc[Round, Filters] {
	return func(ctx context.Context, _ Filters) (Round, bool, error) {
		<-ctx.Done()
		if cancelled != nil {
			cancelled.Add(1)
		}
		return Round{}, false, nil
	}
}

func TestFillsToCapacity(t *testing.T) {
	run(t, func(t *testing.T) {
		var calls atomic.Int64
		buffer := reelguess.New(
			func(ctx context.Context, _ Filters) (Round, bool, error) {
				return Round{ID: strconv.FormatInt(calls.Add(1), 10)}, true, nil
			},
			roundID,
			reelguess.WithCapacity(3),
			reelguess.WithConcurrency(2),
		)
		deferClose(t, buffer)

		for range 5 {
			buffer.Fill()
		}

		<-time.After(time.Millisecond * 100)
		synctest.Wait()

		require.Equal(t, buffer.Len(), 3)
		require.Equal(t, buffer.InFlight(), 0)

		// Queue slots are reserved at launch, so exactly one supplier call is
		// made per queued item even with every attempt succeeding.
		require.Equal(t, calls.Load(), int64(3))

		stats := buffer.Stats()
		require.Equal(t, stats.Queued, uint64(3))
		require.Equal(t, stats.InFlightPeak, uint64(2))
	})
}

func TestNextOrder(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := reelguess.New(
			sequence(),
			roundID,
			reelguess.WithCapacity(3),
			reelguess.WithConcurrency(1),
		)
		deferClose(t, buffer)

		<-time.After(time.Millisecond * 100)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 3)

		for _, want := range []string{"1", "2", "3"} {
			round, ok := buffer.Next(t.Context())
			require.True(t, ok)
			require.Equal(t, round.ID, want)
		}

		stats := buffer.Stats()
		require.Equal(t, stats.ServedImmediate, uint64(3))
		require.Equal(t, stats.ServedAfterWait, uint64(0))
	})
}

func TestDeduplication(t *testing.T) {
	run(t, func(t *testing.T) {
		var calls atomic.Int64
		buffer := reelguess.New(
			func(ctx context.Context, _ Filters) (Round, bool, error) {
				calls.Add(1)
				return Round{ID: "same"}, true, nil
			},
			roundID,
			reelguess.WithCapacity(4),
			reelguess.WithConcurrency(2),
			reelguess.WithMaxAttempts(3),
		)
		deferClose(t, buffer)

		<-time.After(time.Millisecond * 50)
		synctest.Wait()

		require.Equal(t, buffer.Len(), 1)
		require.Equal(t, buffer.Stats().Queued, uint64(1))
		require.True(t, calls.Load() > 3)
	})
}

func TestSetFiltersResetsDedup(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := reelguess.New(
			func(ctx context.Context, _ Filters) (Round, bool, error) {
				return Round{ID: "same"}, true, nil
			},
			roundID,
			reelguess.WithCapacity(2),
			reelguess.WithConcurrency(1),
			reelguess.WithMaxAttempts(2),
		)
		deferClose(t, buffer)

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 1)
		require.Equal(t, buffer.Stats().Queued, uint64(1))

		buffer.SetFilters(Filters{Year: 2000})

		// The identifier seen under the old filters is admitted again.
		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 1)
		require.Equal(t, buffer.Stats().Queued, uint64(2))
	})
}

func TestSetFiltersEqualNoop(t *testing.T) {
	run(t, func(t *testing.T) {
		var cancelled atomic.Int64
		buffer := reelguess.New(
			blocked(&cancelled),
			roundID,
			reelguess.WithCapacity(2),
			reelguess.WithConcurrency(2),
		)
		deferClose(t, buffer)

		synctest.Wait()
		require.Equal(t, buffer.InFlight(), 2)

		buffer.SetFilters(Filters{})

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, cancelled.Load(), int64(0))
		require.Equal(t, buffer.InFlight(), 2)
		require.Equal(t, buffer.Filters(), Filters{})

		buffer.SetFilters(Filters{Year: 1999})

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, cancelled.Load(), int64(2))
		require.Equal(t, buffer.InFlight(), 2)
		require.Equal(t, buffer.Filters(), Filters{Year: 1999})
	})
}

func TestSetFiltersPurgesQueue(t *testing.T) {
	run(t, func(t *testing.T) {
		// Instant unique rounds under the initial filters, never resolving
		// under any other, so the purged queue stays observably empty.
		var n atomic.Int64
		buffer := reelguess.New(
			func(ctx context.Context, f Filters) (Round, bool, error) {
				if f == (Filters{}) {
					return Round{ID: strconv.FormatInt(n.Add(1), 10)}, true, nil
				}
				<-ctx.Done()
				return Round{}, false, nil
			},
			roundID,
			reelguess.WithCapacity(3),
			reelguess.WithConcurrency(2),
		)
		deferClose(t, buffer)

		<-time.After(time.Millisecond * 100)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 3)

		buffer.SetFilters(Filters{Year: 2024})

		<-time.After(time.Millisecond * 100)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 0)
		require.Equal(t, buffer.InFlight(), 2)
		require.Equal(t, buffer.Stats().Queued, uint64(3))
	})
}

func TestConcurrencyCeiling(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := reelguess.New(
			blocked(nil),
			roundID,
			reelguess.WithCapacity(10),
			reelguess.WithConcurrency(3),
		)
		deferClose(t, buffer)

		<-time.After(time.Millisecond * 100)
		synctest.Wait()
		require.Equal(t, buffer.InFlight(), 3)

		for range 10 {
			buffer.Fill()
		}

		<-time.After(time.Millisecond * 100)
		synctest.Wait()
		require.Equal(t, buffer.InFlight(), 3)
		require.Equal(t, buffer.Stats().InFlightPeak, uint64(3))
	})
}

func TestNextTimeout(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := reelguess.New(
			blocked(nil),
			roundID,
			reelguess.WithWaitTimeout(time.Millisecond*100),
		)
		deferClose(t, buffer)

		started := time.Now()
		_, ok := buffer.Next(t.Context())
		require.False(t, ok)
		require.Equal(t, time.Since(started), time.Millisecond*100)
		require.Equal(t, buffer.Stats().Timeouts, uint64(1))
	})
}

func TestNextContextCancel(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := reelguess.New(blocked(nil), roundID)
		deferClose(t, buffer)

		ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond*30)
		defer cancel()

		started := time.Now()
		_, ok := buffer.Next(ctx)
		require.False(t, ok)
		require.Equal(t, time.Since(started), time.Millisecond*30)
		require.Equal(t, buffer.Stats().Timeouts, uint64(1))
	})
}

func TestNextServedAfterWait(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := reelguess.New(
			func(ctx context.Context, _ Filters) (Round, bool, error) {
				select {
				case <-ctx.Done():
					return Round{}, false, nil
				case <-time.After(time.Millisecond * 175):
				}
				return Round{ID: "1"}, true, nil
			},
			roundID,
			reelguess.WithCapacity(1),
			reelguess.WithConcurrency(1),
		)
		deferClose(t, buffer)

		started := time.Now()
		round, ok := buffer.Next(t.Context())
		require.True(t, ok)
		require.Equal(t, round.ID, "1")

		// The round arrived at 175ms and the next poll picked it up.
		require.Equal(t, time.Since(started), time.Millisecond*200)

		stats := buffer.Stats()
		require.Equal(t, stats.ServedAfterWait, uint64(1))
		require.Equal(t, stats.ServedImmediate, uint64(0))
	})
}

func TestBackoffBetweenAttempts(t *testing.T) {
	run(t, func(t *testing.T) {
		calls := make(chan time.Time, 64)
		buffer := reelguess.New(
			func(ctx context.Context, _ Filters) (Round, bool, error) {
				calls <- time.Now()
				return Round{}, false, nil
			},
			roundID,
			reelguess.WithCapacity(1),
			reelguess.WithConcurrency(1),
			reelguess.WithMaxAttempts(6),
			reelguess.WithBackoff(retry.NewExponential(time.Millisecond*100, time.Millisecond*400)),
		)
		deferClose(t, buffer)

		prev := <-calls
		for _, want := range []time.Duration{
			time.Millisecond * 100,
			time.Millisecond * 200,
			time.Millisecond * 400,
			time.Millisecond * 400,
			time.Millisecond * 400,
		} {
			cur := <-calls
			require.Equal(t, cur.Sub(prev), want)
			prev = cur
		}
	})
}

func TestSupplyErrorBacksOff(t *testing.T) {
	run(t, func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		calls := make(chan time.Time, 64)
		buffer := reelguess.New(
			func(ctx context.Context, _ Filters) (Round, bool, error) {
				calls <- time.Now()
				return Round{}, false, errors.New("upstream exploded")
			},
			roundID,
			reelguess.WithCapacity(1),
			reelguess.WithConcurrency(1),
			reelguess.WithMaxAttempts(3),
			reelguess.WithBackoff(retry.NewExponential(time.Millisecond*100, time.Millisecond*400)),
			reelguess.WithLogger(zap.New(core)),
		)
		deferClose(t, buffer)

		// Errors take the same backoff path as an empty result.
		prev := <-calls
		for _, want := range []time.Duration{
			time.Millisecond * 100,
			time.Millisecond * 200,
		} {
			cur := <-calls
			require.Equal(t, cur.Sub(prev), want)
			prev = cur
		}

		synctest.Wait()
		require.Equal(t, logs.FilterMessage("supply failed").Len(), 3)
	})
}

func TestCancelDisarmsFilling(t *testing.T) {
	run(t, func(t *testing.T) {
		var cancelled atomic.Int64
		buffer := reelguess.New(
			blocked(&cancelled),
			roundID,
			reelguess.WithCapacity(4),
			reelguess.WithConcurrency(2),
		)
		deferClose(t, buffer)

		synctest.Wait()
		require.Equal(t, buffer.InFlight(), 2)

		buffer.Cancel(false)

		<-time.After(time.Millisecond * 100)
		synctest.Wait()
		require.Equal(t, cancelled.Load(), int64(2))
		require.Equal(t, buffer.InFlight(), 0)

		buffer.Fill()

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.InFlight(), 2)
	})
}

func TestCancelClearsQueue(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := reelguess.New(
			sequence(),
			roundID,
			reelguess.WithCapacity(2),
			reelguess.WithConcurrency(1),
		)
		deferClose(t, buffer)

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 2)

		buffer.Cancel(true)

		<-time.After(time.Millisecond * 100)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 0)

		buffer.Fill()

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 2)
	})
}

func TestConfigure(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := reelguess.New(
			sequence(),
			roundID,
			reelguess.WithCapacity(2),
			reelguess.WithConcurrency(1),
		)
		deferClose(t, buffer)

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 2)

		buffer.Configure(5, 2)

		<-time.After(time.Millisecond * 100)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 5)

		// Non-positive values leave the limits untouched.
		buffer.Configure(0, 0)
		buffer.Configure(-1, -1)

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 5)

		// Shrinking the capacity never drops queued items; the queue drains
		// down to the new bound through pops.
		buffer.Configure(3, 0)

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 5)

		for range 3 {
			_, ok := buffer.Next(t.Context())
			require.True(t, ok)
		}

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 3)
	})
}

func TestResetStats(t *testing.T) {
	run(t, func(t *testing.T) {
		// Two instant rounds, then the supplier blocks.
		var n atomic.Int64
		buffer := reelguess.New(
			func(ctx context.Context, _ Filters) (Round, bool, error) {
				if v := n.Add(1); v <= 2 {
					return Round{ID: strconv.FormatInt(v, 10)}, true, nil
				}
				<-ctx.Done()
				return Round{}, false, nil
			},
			roundID,
			reelguess.WithCapacity(2),
			reelguess.WithConcurrency(2),
		)
		deferClose(t, buffer)

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 2)

		for range 2 {
			_, ok := buffer.Next(t.Context())
			require.True(t, ok)
		}

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.Stats(), reelguess.Stats{
			Queued:          2,
			ServedImmediate: 2,
			InFlightPeak:    2,
		})

		// The peak restarts from the calls currently outstanding.
		buffer.ResetStats()
		require.Equal(t, buffer.Stats(), reelguess.Stats{InFlightPeak: 2})
	})
}

func TestClose(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := reelguess.New(blocked(nil), roundID)

		require.Nil(t, buffer.Close())
		require.ErrorIs(t, buffer.Close(), reelguess.ErrClosed)

		// All operations degrade to no-ops on a closed buffer.
		_, ok := buffer.Next(t.Context())
		require.False(t, ok)
		require.Equal(t, buffer.Stats().Timeouts, uint64(0))

		buffer.Fill()
		buffer.Configure(10, 10)
		buffer.SetFilters(Filters{Year: 2001})
		require.Equal(t, buffer.Filters(), Filters{})
	})
}

func TestPrometheusMetrics(t *testing.T) {
	run(t, func(t *testing.T) {
		reg := prometheus.NewRegistry()
		buffer := reelguess.New(
			sequence(),
			roundID,
			reelguess.WithCapacity(2),
			reelguess.WithConcurrency(1),
			reelguess.WithPrometheus(reelguess.Prometheus(reg)),
		)
		deferClose(t, buffer)

		<-time.After(time.Millisecond * 50)
		synctest.Wait()
		require.Equal(t, buffer.Len(), 2)

		expected := `
# HELP reelguess_buffer_items_queued Number of items accepted into the queue
# TYPE reelguess_buffer_items_queued counter
reelguess_buffer_items_queued 2
# HELP reelguess_buffer_queue_length Number of items in the queue
# TYPE reelguess_buffer_queue_length gauge
reelguess_buffer_queue_length 2
`
		require.Nil(t, testutil.GatherAndCompare(
			reg,
			strings.NewReader(expected),
			"reelguess_buffer_items_queued",
			"reelguess_buffer_queue_length",
		))
	})
}

func run(t *testing.T, fn func(t *testing.T)) {
	t.Helper()
	synctest.Test(t, fn)
}

func deferClose[Item any, Filter comparable](t *testing.T, buffer *reelguess.Buffer[Item, Filter]) {
	t.Cleanup(func() {
		if err := buffer.Close(); err != nil {
			t.Fatalf("close buffer: %v", err)
		}
	})
}

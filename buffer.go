package reelguess

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrClosed = errors.New("buffer is closed")
)

// SupplyFunc fetches one candidate item matching the given filters.
//
// Returning false with a nil error means no candidate was available this
// attempt. Errors are absorbed by the buffer: they surface only through the
// configured logger and metrics, never to consumers. The context is cancelled
// when the attempt is aborted and implementations must return promptly.
type SupplyFunc[Item any, Filter comparable] func(ctx context.Context, filters Filter) (Item, bool, error)

// IDFunc extracts the identifier used for deduplication.
type IDFunc[Item any] func(item Item) string

// Buffer is a bounded, deduplicating prefetch queue between an unreliable
// supplier and an interactive consumer.
//
// A background worker keeps the queue warm by launching concurrent supplier
// calls, so that Next can usually answer without touching the network. One
// instance is safe for use by multiple goroutines.
type Buffer[Item any, Filter comparable] struct {
	cfg    *config
	supply SupplyFunc[Item, Filter]
	id     IDFunc[Item]

	mu          sync.Mutex
	queue       *fifo[Item]
	seen        map[string]struct{}
	inFlight    map[uint64]context.CancelFunc
	filters     Filter
	epoch       uint64
	seq         uint64
	armed       bool
	capacity    int
	concurrency int

	closing *atomic.Bool
	stats   *counters

	wake chan struct{}
	wg   sync.WaitGroup

	fillCtx   context.Context
	fillStop  func()
	fillGroup *errgroup.Group
}

func New[Item any, Filter comparable](
	supply SupplyFunc[Item, Filter],
	id IDFunc[Item],
	options ...Option,
) *Buffer[Item, Filter] {
	if supply == nil {
		panic("supply can't be nil")
	}
	if id == nil {
		panic("id can't be nil")
	}

	cfg := newConfig(options...)

	var (
		closing = new(atomic.Bool)

		wake = make(chan struct{}, 1)

		fillCtx_, fillStop = context.WithCancel(context.Background())
		fillGroup, fillCtx = errgroup.WithContext(fillCtx_)
	)

	buffer := Buffer[Item, Filter]{
		cfg:    cfg,
		supply: supply,
		id:     id,

		queue:       newFifo[Item](),
		seen:        make(map[string]struct{}),
		inFlight:    make(map[uint64]context.CancelFunc),
		armed:       true,
		capacity:    cfg.capacity,
		concurrency: cfg.concurrency,

		closing: closing,
		stats:   newCounters(),

		wake: wake,

		fillCtx:   fillCtx,
		fillStop:  fillStop,
		fillGroup: fillGroup,
	}

	buffer.fillGroup.Go(buffer.fillWorker)
	notify(buffer.wake, struct{}{})

	return &buffer
}

// Next pops the oldest queued item. An empty queue triggers a fill and polls
// until an item arrives, the wait timeout elapses, or ctx is done.
//
// Returns false when no item became available in time. It never returns an
// error: upstream failures degrade to a none result.
func (b *Buffer[Item, Filter]) Next(ctx context.Context) (Item, bool) {
	var zero Item
	if b.closing.Load() {
		return zero, false
	}

	if item, ok := b.pop(); ok {
		b.stats.servedImmediate.Add(1)
		b.cfg.metrics.itemsServed.WithLabelValues("immediate").Inc()
		b.Fill()
		return item, true
	}

	b.Fill()

	var (
		poll     = ticker(b.cfg.pollInterval)
		deadline = timer(b.cfg.waitTimeout)
	)
	for {
		select {
		case <-b.fillCtx.Done():
			return zero, false
		case <-ctx.Done():
			b.stats.timeouts.Add(1)
			b.cfg.metrics.timeouts.Inc()
			return zero, false
		case <-deadline:
			b.stats.timeouts.Add(1)
			b.cfg.metrics.timeouts.Inc()
			return zero, false
		case <-poll:
			if item, ok := b.pop(); ok {
				b.stats.servedAfterWait.Add(1)
				b.cfg.metrics.itemsServed.WithLabelValues("waited").Inc()
				b.Fill()
				return item, true
			}
		}
	}
}

// Fill arms background filling and pokes the fill worker. It is idempotent
// and returns immediately; the worker never runs more than one pass at a
// time.
func (b *Buffer[Item, Filter]) Fill() {
	if b.closing.Load() {
		return
	}

	b.mu.Lock()
	b.armed = true
	b.mu.Unlock()

	notify(b.wake, struct{}{})
}

// Configure updates the capacity and concurrency limits. Non-positive values
// leave the respective limit unchanged. Triggers a fill.
func (b *Buffer[Item, Filter]) Configure(capacity, concurrency int) {
	if b.closing.Load() {
		return
	}

	b.mu.Lock()
	if capacity > 0 {
		b.capacity = capacity
	}
	if concurrency > 0 {
		b.concurrency = concurrency
	}
	b.armed = true
	b.mu.Unlock()

	notify(b.wake, struct{}{})
}

// SetFilters replaces the filters applied to supplier calls. Setting an equal
// value is a no-op. An effective change clears the dedup history, cancels all
// in-flight supplier calls, purges already-queued items (they were fetched
// under the old filters) and triggers a fill.
func (b *Buffer[Item, Filter]) SetFilters(filters Filter) {
	if b.closing.Load() {
		return
	}

	b.mu.Lock()
	if filters == b.filters {
		b.mu.Unlock()
		return
	}

	b.filters = filters
	b.epoch += 1
	clear(b.seen)
	for _, cancel := range b.inFlight {
		cancel()
	}
	b.queue.Reset()
	b.cfg.metrics.queueLength.Set(0)
	b.armed = true
	b.mu.Unlock()

	notify(b.wake, struct{}{})
}

// Cancel aborts all in-flight supplier calls and disarms background filling
// until the next trigger (Next, Fill, Configure or SetFilters). With
// clearQueue it also discards already-queued items.
func (b *Buffer[Item, Filter]) Cancel(clearQueue bool) {
	b.mu.Lock()
	b.epoch += 1
	for _, cancel := range b.inFlight {
		cancel()
	}
	if clearQueue {
		b.queue.Reset()
		b.cfg.metrics.queueLength.Set(0)
	}
	b.armed = false
	b.mu.Unlock()
}

// Close tears down the fill worker and all in-flight supplier calls and waits
// for them to finish. Subsequent operations are no-ops; a second Close
// returns [ErrClosed].
func (b *Buffer[Item, Filter]) Close() error {
	if b.closing.Swap(true) {
		return ErrClosed
	}

	b.fillStop()
	err := b.fillGroup.Wait()
	b.wg.Wait()

	return err
}

// Len returns the number of queued items.
func (b *Buffer[Item, Filter]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Size()
}

// InFlight returns the number of outstanding supplier calls.
func (b *Buffer[Item, Filter]) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inFlight)
}

// Filters returns the current filters.
func (b *Buffer[Item, Filter]) Filters() Filter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filters
}

// Stats returns a snapshot of the buffer's counters.
func (b *Buffer[Item, Filter]) Stats() Stats {
	return b.stats.snapshot()
}

// ResetStats zeroes all counters. The in-flight peak restarts from the
// current number of outstanding supplier calls.
func (b *Buffer[Item, Filter]) ResetStats() {
	b.mu.Lock()
	inFlight := uint64(len(b.inFlight))
	b.mu.Unlock()

	b.stats.reset(inFlight)
}

func (b *Buffer[Item, Filter]) pop() (Item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.queue.Pop()
	if ok {
		b.cfg.metrics.queueLength.Set(float64(b.queue.Size()))
	}
	return item, ok
}

func (b *Buffer[Item, Filter]) fillWorker() error {
	var tick <-chan time.Time
	for {
		select {
		case <-b.fillCtx.Done():
			return nil
		case <-b.wake:
		case <-tick:
		}

		if b.launch() {
			tick = timer(b.cfg.fillInterval)
		} else {
			tick = nil
		}
	}
}

// launch starts fetch attempts while a queue slot and a concurrency slot are
// both free. Queued items plus in-flight attempts never exceed capacity, so
// the queue stays within its bound even when every attempt succeeds. Reports
// whether the worker should check again after the fill interval.
func (b *Buffer[Item, Filter]) launch() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.armed {
		return false
	}

	for b.queue.Size()+len(b.inFlight) < b.capacity && len(b.inFlight) < b.concurrency {
		b.launchAttempt()
	}

	return b.queue.Size() < b.capacity
}

func (b *Buffer[Item, Filter]) launchAttempt() {
	ctx, cancel := context.WithCancel(b.fillCtx)

	handle := b.seq
	b.seq += 1
	b.inFlight[handle] = cancel
	b.stats.observePeak(uint64(len(b.inFlight)))
	b.cfg.metrics.inFlight.Set(float64(len(b.inFlight)))

	epoch := b.epoch
	filters := b.filters

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.settle(handle, cancel)
		b.runAttempt(ctx, epoch, filters)
	}()
}

func (b *Buffer[Item, Filter]) runAttempt(ctx context.Context, epoch uint64, filters Filter) {
	var (
		backoff = b.cfg.backoff.Derive()
		wait    = false
	)

	for range b.cfg.maxAttempts {
		if wait && !backoff.Wait(ctx) {
			return
		}
		wait = false

		start := time.Now()
		item, ok, err := b.supply(ctx, filters)
		b.cfg.metrics.supplyDuration.Observe(time.Since(start).Seconds())

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			b.cfg.logger.Warn("supply failed", zap.Error(err))
			b.cfg.metrics.supplyErrors.Inc()
		} else if ok {
			if b.accept(item, epoch) {
				return
			}
			// Duplicate: retry right away, it only cost a lookup.
			continue
		}

		if b.full() {
			return
		}

		wait = true
	}
}

// accept records and enqueues a novel item. It reports whether the attempt
// loop is done: either the push succeeded or the attempt went stale behind a
// filter change. A duplicate reports false and the loop retries.
func (b *Buffer[Item, Filter]) accept(item Item, epoch uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if epoch != b.epoch {
		return true
	}

	id := b.id(item)
	if _, ok := b.seen[id]; ok {
		return false
	}

	b.seen[id] = struct{}{}
	b.queue.Push(item)
	b.stats.queued.Add(1)
	b.cfg.metrics.itemsQueued.Inc()
	b.cfg.metrics.queueLength.Set(float64(b.queue.Size()))

	return true
}

func (b *Buffer[Item, Filter]) full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Size() >= b.capacity
}

// settle releases the attempt's slot. Relaunching is left to the worker's
// fill interval so that attempts failing instantly cannot spin it.
func (b *Buffer[Item, Filter]) settle(handle uint64, cancel context.CancelFunc) {
	cancel()

	b.mu.Lock()
	delete(b.inFlight, handle)
	b.cfg.metrics.inFlight.Set(float64(len(b.inFlight)))
	b.mu.Unlock()
}

func notify[T any](ch chan T, v T) {
	if ch != nil {
		select {
		case ch <- v:
		default:
		}
	}
}

func ticker(d time.Duration) <-chan time.Time {
	if d <= 0 {
		return make(<-chan time.Time)
	}
	return time.Tick(d)
}

func timer(d time.Duration) <-chan time.Time {
	if d <= 0 {
		return make(<-chan time.Time)
	}
	return time.After(d)
}

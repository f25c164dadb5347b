package reelguess

import "sync/atomic"

// Stats is a point-in-time snapshot of the buffer's counters.
//
// All counters accumulate monotonically for the lifetime of the buffer and
// are zeroed only by [Buffer.ResetStats].
type Stats struct {
	// Queued is the number of items accepted into the queue.
	Queued uint64
	// ServedImmediate is the number of Next calls answered from a non-empty
	// queue without waiting.
	ServedImmediate uint64
	// ServedAfterWait is the number of Next calls answered after polling.
	ServedAfterWait uint64
	// Timeouts is the number of Next calls that ended without an item.
	Timeouts uint64
	// InFlightPeak is the highest number of simultaneously outstanding
	// supplier calls observed.
	InFlightPeak uint64
}

type counters struct {
	queued          *atomic.Uint64
	servedImmediate *atomic.Uint64
	servedAfterWait *atomic.Uint64
	timeouts        *atomic.Uint64
	inFlightPeak    *atomic.Uint64
}

func newCounters() *counters {
	return &counters{
		queued:          new(atomic.Uint64),
		servedImmediate: new(atomic.Uint64),
		servedAfterWait: new(atomic.Uint64),
		timeouts:        new(atomic.Uint64),
		inFlightPeak:    new(atomic.Uint64),
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Queued:          c.queued.Load(),
		ServedImmediate: c.servedImmediate.Load(),
		ServedAfterWait: c.servedAfterWait.Load(),
		Timeouts:        c.timeouts.Load(),
		InFlightPeak:    c.inFlightPeak.Load(),
	}
}

func (c *counters) reset(inFlight uint64) {
	c.queued.Store(0)
	c.servedImmediate.Store(0)
	c.servedAfterWait.Store(0)
	c.timeouts.Store(0)
	c.inFlightPeak.Store(inFlight)
}

func (c *counters) observePeak(inFlight uint64) {
	for {
		peak := c.inFlightPeak.Load()
		if inFlight <= peak {
			return
		}
		if c.inFlightPeak.CompareAndSwap(peak, inFlight) {
			return
		}
	}
}

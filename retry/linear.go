package retry

import (
	"context"
	"time"
)

type Linear struct {
	count       int
	step        time.Duration
	jitter      time.Duration
	minInterval time.Duration
	maxInterval time.Duration
	maxReached  bool
}

var _ Policy = (*Linear)(nil)

func NewLinear(minInterval, maxInterval time.Duration) *Linear {
	if minInterval <= 0 {
		panic("minInterval can't be <= 0")
	}
	if minInterval >= maxInterval {
		panic("minInterval can't be >= maxInterval")
	}

	return &Linear{
		minInterval: minInterval,
		maxInterval: maxInterval,
		step:        minInterval,
	}
}

func (r *Linear) WithStep(step time.Duration) *Linear {
	if step <= 0 {
		panic("step can't be <= 0")
	}
	r.step = step
	return r
}

func (r *Linear) WithJitter(jitter time.Duration) *Linear {
	if jitter < 0 {
		panic("jitter can't be < 0")
	}
	r.jitter = jitter
	return r
}

func (r *Linear) Wait(ctx context.Context) bool {
	var interval time.Duration
	if r.maxReached {
		interval = r.maxInterval
	} else {
		delta := r.step * time.Duration(r.count)
		interval = r.minInterval + delta
		if interval > r.maxInterval {
			r.maxReached = true
			interval = r.maxInterval
		}
	}
	r.count += 1

	return wait(ctx, interval, r.jitter)
}

func (r *Linear) Derive() Policy {
	return NewLinear(r.minInterval, r.maxInterval).
		WithStep(r.step).
		WithJitter(r.jitter)
}

package retry

import (
	"context"
	"math"
	"time"
)

type Exponential struct {
	step        int
	growth      float64
	jitter      time.Duration
	minInterval time.Duration
	maxInterval time.Duration
	maxReached  bool
}

var _ Policy = (*Exponential)(nil)

func NewExponential(minInterval, maxInterval time.Duration) *Exponential {
	if minInterval <= 0 {
		panic("minInterval can't be <= 0")
	}
	if minInterval >= maxInterval {
		panic("minInterval can't be >= maxInterval")
	}

	return &Exponential{
		minInterval: minInterval,
		maxInterval: maxInterval,
		growth:      2,
	}
}

func (r *Exponential) WithGrowth(growth float64) *Exponential {
	if growth <= 1 {
		panic("growth can't be <= 1")
	}
	r.growth = growth
	return r
}

func (r *Exponential) WithJitter(jitter time.Duration) *Exponential {
	if jitter < 0 {
		panic("jitter can't be < 0")
	}
	r.jitter = jitter
	return r
}

func (r *Exponential) Wait(ctx context.Context) bool {
	var interval time.Duration
	if r.maxReached {
		interval = r.maxInterval
	} else {
		interval = time.Duration(float64(r.minInterval) * math.Pow(r.growth, float64(r.step)))
		if interval > r.maxInterval {
			r.maxReached = true
			interval = r.maxInterval
		}
	}
	r.step += 1

	return wait(ctx, interval, r.jitter)
}

func (r *Exponential) Derive() Policy {
	return NewExponential(r.minInterval, r.maxInterval).
		WithGrowth(r.growth).
		WithJitter(r.jitter)
}

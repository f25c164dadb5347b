package retry

import (
	"context"
	"time"
)

type Fixed struct {
	jitter   time.Duration
	interval time.Duration
}

var _ Policy = (*Fixed)(nil)

func NewFixed(interval time.Duration) *Fixed {
	if interval <= 0 {
		panic("interval can't be <= 0")
	}

	return &Fixed{interval: interval}
}

func (r *Fixed) WithJitter(jitter time.Duration) *Fixed {
	if jitter < 0 {
		panic("jitter can't be < 0")
	}
	r.jitter = jitter
	return r
}

func (r *Fixed) Wait(ctx context.Context) bool {
	return wait(ctx, r.interval, r.jitter)
}

func (r *Fixed) Derive() Policy {
	return NewFixed(r.interval).WithJitter(r.jitter)
}

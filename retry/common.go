package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

func wait(ctx context.Context, interval, jitter time.Duration) bool {
	if jitter < 0 {
		panic("invalid jitter")
	}

	d := interval
	if jitter > 0 {
		d += rand.N(jitter)
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

package retry

import (
	"context"
)

type Immediate struct{}

var _ Policy = (*Immediate)(nil)

func NewImmediate() *Immediate {
	return &Immediate{}
}

func (r *Immediate) Wait(ctx context.Context) bool {
	return ctx.Err() == nil
}

func (r *Immediate) Derive() Policy {
	return NewImmediate()
}

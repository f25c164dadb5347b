// This package contains the main [Policy] interface and several implementations.
package retry

import (
	"context"
)

// Policy defines the backoff behaviour of fetch attempts.
//
// A policy is a stateful sequence of delays: every call to Wait blocks for the
// next delay in the sequence. Implementations are not considered thread-safe
// and each instance is used by a single attempt loop.
type Policy interface {
	// Wait blocks for the next delay in the sequence.
	//
	// Returns true once the delay has elapsed, false if the context was
	// cancelled while waiting.
	Wait(ctx context.Context) bool
	// Derive returns a new Policy instance for a single attempt loop.
	//
	// The returned policy maintains its own internal state for tracking the
	// position in the delay sequence.
	Derive() Policy
}

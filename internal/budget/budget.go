// internal/budget/budget.go
package budget

import (
	"context"
	"time"
)

// HardCap is the ceiling no run may exceed regardless of the requested timeout.
const HardCap = 120 * time.Second

// Budget is a single wall-clock deadline computed once at run start. Every
// sub-operation (document fetch, script fetch, XHR abort timers, idle polling)
// derives its own allowance from it via Clamp, so one slow external resource
// can never extend the run past the caller's timeout.
type Budget struct {
	start    time.Time
	deadline time.Time
}

// New computes effective = min(requested, hardCap) and fixes the deadline.
// Non-positive values fall back to the cap they would otherwise exceed.
func New(requested, hardCap time.Duration) *Budget {
	if hardCap <= 0 {
		hardCap = HardCap
	}
	effective := requested
	if effective <= 0 || effective > hardCap {
		effective = hardCap
	}
	now := time.Now()
	return &Budget{start: now, deadline: now.Add(effective)}
}

// Start returns the instant the budget was created.
func (b *Budget) Start() time.Time { return b.start }

// Deadline returns the fixed wall-clock cutoff.
func (b *Budget) Deadline() time.Time { return b.deadline }

// Remaining returns the time left before the deadline, clamped to >= 0.
func (b *Budget) Remaining() time.Duration {
	r := time.Until(b.deadline)
	if r < 0 {
		return 0
	}
	return r
}

// Exceeded reports whether the deadline has passed.
func (b *Budget) Exceeded() bool { return b.Remaining() == 0 }

// Clamp bounds an operation timeout so it never outlives the run.
// A non-positive operation timeout means "whatever is left".
func (b *Budget) Clamp(op time.Duration) time.Duration {
	remaining := b.Remaining()
	if op <= 0 || op > remaining {
		return remaining
	}
	return op
}

// Context derives a context that expires at the budget deadline.
func (b *Budget) Context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithDeadline(parent, b.deadline)
}

// internal/browser/jsexec/pending.go
package jsexec

import "sync/atomic"

// PendingTracker counts in-flight asynchronous work (dynamic script fetches,
// XHR dispatches). The network-idle wait strategy treats a sustained zero as
// "settled". Increments happen before the work is handed to a goroutine and
// decrements in a defer, so a panicking job can never wedge the counter.
type PendingTracker struct {
	n atomic.Int64
}

// Inc registers one unit of in-flight work.
func (p *PendingTracker) Inc() { p.n.Add(1) }

// Dec retires one unit of in-flight work.
func (p *PendingTracker) Dec() { p.n.Add(-1) }

// Count returns the current number of in-flight units.
func (p *PendingTracker) Count() int64 { return p.n.Load() }

// Idle reports whether no work is in flight right now.
func (p *PendingTracker) Idle() bool { return p.n.Load() == 0 }

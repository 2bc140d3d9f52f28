// Package mailbox hands the newest value from one goroutine to another.
//
// A Mailbox holds at most one value. Publish always overwrites a value the
// consumer has not taken yet; nothing is ever queued. A consumer that polls
// at any rate sees either the most recent value or nothing, never a stale
// one once a newer one was published.
package mailbox

import (
	"context"
	"sync"
	"time"
)

// Mailbox is a single-slot, overwrite-on-publish cell. Safe for concurrent use.
type Mailbox[T any] struct {
	mu    sync.Mutex
	val   T
	full  bool
	ready chan struct{} // one-slot signal, coalesces publishes

	published   uint64
	overwritten uint64
}

// New creates an empty Mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Publish stores v, replacing any unread value, and reports whether one was
// replaced. Never blocks.
func (m *Mailbox[T]) Publish(v T) (overwrote bool) {
	m.mu.Lock()
	if m.full {
		m.overwritten++
		overwrote = true
	}
	m.val = v
	m.full = true
	m.published++
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return overwrote
}

// TakeLatest returns the stored value and empties the slot.
func (m *Mailbox[T]) TakeLatest() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if !m.full {
		return zero, false
	}
	v := m.val
	m.val = zero
	m.full = false
	return v, true
}

// Ready returns a channel that receives after a Publish. A receive does not
// guarantee a value is still there (another consumer may have taken it);
// always follow up with TakeLatest.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}

// Wait blocks until a value can be taken or ctx is done. If maxPoll > 0 the
// slot is also checked every maxPoll, so a missed signal costs at most one
// interval.
func (m *Mailbox[T]) Wait(ctx context.Context, maxPoll time.Duration) (T, error) {
	var tick <-chan time.Time
	if maxPoll > 0 {
		t := time.NewTicker(maxPoll)
		defer t.Stop()
		tick = t.C
	}
	for {
		// A cancelled waiter must not consume a value meant for the next one.
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		if v, ok := m.TakeLatest(); ok {
			return v, nil
		}
		select {
		case <-m.ready:
		case <-tick:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Stats returns how many values were published and how many of those were
// overwritten before anyone took them.
func (m *Mailbox[T]) Stats() (published, overwritten uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.overwritten
}

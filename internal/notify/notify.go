// Package notify provides the change-propagation primitives shared by every
// data producer in the bar: a coalescing redraw signal and a drain-on-fire
// interest list.
//
// No producer pushes re-renders directly. A producer that changed some
// observed data notifies the interest list attached to that data; each
// registered party is woken exactly once and must re-register during its next
// render pass to observe subsequent changes. This keeps long-lived caches and
// the surfaces observing them decoupled from one another.
package notify

import "sync"

// Waker is the receiving end of a data-change notification. It is implemented
// by the runtime context, whose WakeData marks observed data as stale and
// requests an immediate redraw.
type Waker interface {
	WakeData()
}

// Signal is a coalescing wakeup channel. Any number of Notify calls between
// two Wait receives collapse into a single wakeup, so a burst of changes
// produces one redraw rather than a queue of stale ones.
type Signal struct {
	ch chan struct{}
}

// NewSignal returns a ready-to-use Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify wakes the waiter if one is pending or will be. It never blocks.
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait returns the channel a consumer receives from to observe the next
// wakeup. Receiving consumes the pending notification.
func (s *Signal) Wait() <-chan struct{} {
	return s.ch
}

// List is an interest registry: an unordered collection of parties to wake
// when the data it guards changes. Registering the same party twice is
// harmless (it is woken twice, which coalesces at the Signal level).
type List struct {
	mu     sync.Mutex
	wakers []Waker
}

// Add records w's interest in the next change.
func (l *List) Add(w Waker) {
	if w == nil {
		return
	}
	l.mu.Lock()
	l.wakers = append(l.wakers, w)
	l.mu.Unlock()
}

// NotifyData atomically takes the current registrants, leaving the list
// empty, and wakes each of them. Parties that want to observe the change
// after this one must re-register.
func (l *List) NotifyData() {
	l.mu.Lock()
	taken := l.wakers
	l.wakers = nil
	l.mu.Unlock()

	for _, w := range taken {
		w.WakeData()
	}
}

// Len reports the number of currently registered parties.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.wakers)
}

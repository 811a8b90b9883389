// Package wake schedules future redraws. It is the only mechanism by which
// time-based parts of the bar (clocks, polling widgets) request repaints
// without busy-waiting: they ask to be woken no later than some deadline, and
// the scheduler fires the shared redraw signal once when the earliest
// outstanding deadline elapses.
package wake

import (
	"context"
	"sync"
	"time"

	"wlbar/internal/notify"
)

// Scheduler holds at most one pending deadline. Requests merge down to the
// earliest deadline: asking for a wake later than one already pending has no
// effect. The pending deadline is cleared only when it actually elapses.
type Scheduler struct {
	mu       sync.Mutex
	deadline time.Time
	armed    bool

	rearm  chan struct{}
	redraw *notify.Signal
}

// New returns a Scheduler that fires redraw when a deadline elapses. Run must
// be started for deadlines to fire.
func New(redraw *notify.Signal) *Scheduler {
	return &Scheduler{
		rearm:  make(chan struct{}, 1),
		redraw: redraw,
	}
}

// RequestWakeAt records a request to fire no later than t. If an earlier
// request is already pending, the call has no effect.
func (s *Scheduler) RequestWakeAt(t time.Time) {
	s.mu.Lock()
	if s.armed && !s.deadline.After(t) {
		s.mu.Unlock()
		return
	}
	s.deadline = t
	s.armed = true
	s.mu.Unlock()

	select {
	case s.rearm <- struct{}{}:
	default:
	}
}

// Pending reports the currently armed deadline, if any.
func (s *Scheduler) Pending() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, s.armed
}

// Run waits perpetually on a race between "the pending deadline elapses" and
// "a new, earlier deadline was registered". Elapsing clears the deadline and
// emits exactly one redraw notification; a re-registration merely restarts
// the race with the (possibly unchanged) earliest deadline. With nothing
// armed, Run suspends until a deadline is registered or ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.mu.Lock()
		deadline, armed := s.deadline, s.armed
		s.mu.Unlock()

		if !armed {
			select {
			case <-ctx.Done():
				return
			case <-s.rearm:
			}
			continue
		}

		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.rearm:
			// Earliest may have moved; recompute. The pre-empted
			// deadline stays armed for its original time unless the
			// new one is earlier.
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
			s.mu.Lock()
			s.armed = false
			s.mu.Unlock()
			s.redraw.Notify()
		}
	}
}

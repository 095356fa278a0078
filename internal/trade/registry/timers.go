package registry

import (
	"sync"
	"time"

	"github.com/ashgrove-games/tradepost/internal/trade/domain"
)

// Scheduler schedules one-shot callbacks. The registry takes it as an
// interface so tests can fire timers deterministically.
type Scheduler interface {
	// After runs fn once the delay elapses and returns a handle that
	// can cancel the callback before it runs.
	After(delay time.Duration, fn func()) domain.TimerHandle

	// Stop cancels every pending callback. After Stop the scheduler
	// accepts no new work.
	Stop()
}

// Timers is the wall-clock Scheduler, built on time.AfterFunc.
type Timers struct {
	mu      sync.Mutex
	closed  bool
	pending map[*timerHandle]struct{}
}

// NewTimers creates a running wall-clock scheduler.
func NewTimers() *Timers {
	return &Timers{pending: make(map[*timerHandle]struct{})}
}

type timerHandle struct {
	owner *Timers
	timer *time.Timer
}

// Cancel stops the callback if it has not fired. It reports whether
// this call prevented the callback from running.
func (h *timerHandle) Cancel() bool {
	if h == nil || h.timer == nil {
		return false
	}
	stopped := h.timer.Stop()
	h.owner.forget(h)
	return stopped
}

// noopHandle is handed out after Stop so callers never hold a nil.
type noopHandle struct{}

func (noopHandle) Cancel() bool { return false }

// After schedules fn to run once delay elapses.
func (t *Timers) After(delay time.Duration, fn func()) domain.TimerHandle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return noopHandle{}
	}

	handle := &timerHandle{owner: t}
	handle.timer = time.AfterFunc(delay, func() {
		t.forget(handle)
		fn()
	})
	t.pending[handle] = struct{}{}
	return handle
}

func (t *Timers) forget(handle *timerHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, handle)
}

// Stop cancels all pending callbacks and closes the scheduler.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for handle := range t.pending {
		handle.timer.Stop()
	}
	t.pending = make(map[*timerHandle]struct{})
}

package registry

import (
	"testing"
	"time"
)

func TestTimersFire(t *testing.T) {
	timers := NewTimers()
	defer timers.Stop()

	fired := make(chan struct{})
	timers.After(time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimersCancel(t *testing.T) {
	timers := NewTimers()
	defer timers.Stop()

	fired := make(chan struct{})
	handle := timers.After(100*time.Millisecond, func() { close(fired) })

	if !handle.Cancel() {
		t.Fatal("Cancel() = false on a pending timer")
	}
	if handle.Cancel() {
		t.Fatal("second Cancel() = true")
	}

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTimersStopPreventsScheduling(t *testing.T) {
	timers := NewTimers()

	fired := make(chan struct{}, 2)
	timers.After(50*time.Millisecond, func() { fired <- struct{}{} })
	timers.Stop()
	handle := timers.After(time.Millisecond, func() { fired <- struct{}{} })

	if handle.Cancel() {
		t.Fatal("handle from a stopped scheduler claimed a live timer")
	}

	select {
	case <-fired:
		t.Fatal("timer fired after Stop")
	case <-time.After(150 * time.Millisecond):
	}
}

package reactor

import (
	"time"
)

// Timer is an event without a descriptor, which calls a function after a
// delay, once or repeatedly. The delay starts when it is added to a loop.
// An attached Timer keeps the loop running.
type Timer struct {
	BaseEvent
	fn       func()
	delay    time.Duration
	interval bool
}

var (
	_ TimeoutHandler = (*Timer)(nil)
	_ AttachHook     = (*Timer)(nil)
)

// NewTimer returns a one-shot timer, which detaches after calling fn.
func NewTimer(delay time.Duration, fn func()) *Timer {
	return &Timer{fn: fn, delay: delay}
}

// NewInterval returns a timer which calls fn every interval, until stopped.
func NewInterval(interval time.Duration, fn func()) *Timer {
	return &Timer{fn: fn, delay: interval, interval: true}
}

// AfterFunc adds a one-shot timer to l.
func AfterFunc(l *Loop, delay time.Duration, fn func()) (*Timer, error) {
	t := NewTimer(delay, fn)
	if _, err := l.Add(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Timer) OnAttach(a *Attachment) {
	_ = a.ArmTimeout(t.delay)
}

func (t *Timer) OnTimeout() {
	if t.interval {
		_ = t.Attachment().ArmTimeout(t.delay)
	} else {
		_ = t.Detach()
	}
	if t.fn != nil {
		t.fn()
	}
}

// Stop cancels the timer, detaching it. It is a no-op if the timer is not
// attached.
func (t *Timer) Stop() error {
	return t.Detach()
}

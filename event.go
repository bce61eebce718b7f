package reactor

import (
	"time"
)

// NoFD is returned by [Event.FD] when there is no file descriptor.
const NoFD = -1

// Event is anything that can be attached to a [Loop]. Implementations embed
// [BaseEvent], and opt in to reactions by implementing any of
// [ReadHandler], [WriteHandler], [ErrorHandler], [CloseHandler],
// [TimeoutHandler], [AttachHook] and [DetachHook]. The reaction set is
// resolved once, when the event is added.
type Event interface {
	// FD returns the current file descriptor, or NoFD.
	FD() int
	// Interest returns the current interest mask.
	Interest() IOEvents

	base() *BaseEvent
}

type (
	ReadHandler interface{ OnRead() }

	WriteHandler interface{ OnWrite() }

	ErrorHandler interface{ OnError() }

	// CloseHandler reacts to hang-up (peer closed) readiness.
	CloseHandler interface{ OnClose() }

	// TimeoutHandler reacts to the expiry of a timeout armed via
	// [Attachment.ArmTimeout].
	TimeoutHandler interface{ OnTimeout() }

	// AttachHook is called once the event has been added to a loop.
	AttachHook interface{ OnAttach(a *Attachment) }

	// DetachHook is called once per attachment, when removal is requested.
	// The event may already be re-added from within it.
	DetachHook interface{ OnDetach() }
)

// BaseEvent holds the descriptor, interest mask and attachment state of an
// [Event]. The zero value has no descriptor and no interest.
type BaseEvent struct {
	att *Attachment
	// offset by one, so the zero value is NoFD
	fd       int
	interest IOEvents
}

func (e *BaseEvent) base() *BaseEvent { return e }

// FD returns the current file descriptor, or NoFD.
func (e *BaseEvent) FD() int { return e.fd - 1 }

// Interest returns the current interest mask.
func (e *BaseEvent) Interest() IOEvents { return e.interest }

// SetFD replaces the descriptor and interest mask. If attached, the loop is
// notified, and any registration failure is returned.
func (e *BaseEvent) SetFD(fd int, interest IOEvents) error {
	if fd < 0 {
		fd = NoFD
	}
	e.fd = fd + 1
	e.interest = interest
	return e.notify()
}

// SetInterest replaces the interest mask. See also [BaseEvent.SetFD].
func (e *BaseEvent) SetInterest(interest IOEvents) error {
	if e.interest == interest {
		return nil
	}
	e.interest = interest
	return e.notify()
}

func (e *BaseEvent) notify() error {
	if e.att == nil {
		return nil
	}
	return e.att.NotifyInterestChanged()
}

// Attachment returns the current attachment, or nil if not attached.
func (e *BaseEvent) Attachment() *Attachment { return e.att }

// Attached reports whether the event is currently attached to a loop.
func (e *BaseEvent) Attached() bool { return e.att != nil }

// Detach requests removal from the loop, if attached.
func (e *BaseEvent) Detach() error {
	if e.att == nil {
		return nil
	}
	return e.att.Detach()
}

// Attachment binds an [Event] to a [Loop]. Methods on a nil or detached
// attachment return [ErrStaleHandle].
type Attachment struct {
	loop   *Loop
	handle Handle
}

// Loop returns the loop the event is (or was) attached to.
func (a *Attachment) Loop() *Loop {
	if a == nil {
		return nil
	}
	return a.loop
}

// Handle returns the registration handle.
func (a *Attachment) Handle() Handle {
	if a == nil {
		return 0
	}
	return a.handle
}

// Attached reports whether the registration is still attached.
func (a *Attachment) Attached() bool {
	return a != nil && a.loop.registry.attached(a.handle) != nil
}

// Detach is an alias for [Loop.RequestRemoval].
func (a *Attachment) Detach() error {
	if a == nil {
		return ErrStaleHandle
	}
	return a.loop.RequestRemoval(a.handle)
}

// NotifyInterestChanged is an alias for [Loop.NotifyInterestChanged].
func (a *Attachment) NotifyInterestChanged() error {
	if a == nil {
		return ErrStaleHandle
	}
	return a.loop.NotifyInterestChanged(a.handle)
}

// ArmTimeout is an alias for [Loop.ArmTimeout].
func (a *Attachment) ArmTimeout(d time.Duration) error {
	if a == nil {
		return ErrStaleHandle
	}
	return a.loop.ArmTimeout(a.handle, d)
}

// CancelTimeout is an alias for [Loop.CancelTimeout].
func (a *Attachment) CancelTimeout() error {
	if a == nil {
		return ErrStaleHandle
	}
	return a.loop.CancelTimeout(a.handle)
}

// TimeoutArmed reports whether a timeout is pending.
func (a *Attachment) TimeoutArmed() bool {
	if a == nil {
		return false
	}
	reg := a.loop.registry.attached(a.handle)
	return reg != nil && reg.timer != nil
}

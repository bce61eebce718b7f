// Package reactor implements a single-threaded, callback driven I/O event
// loop.
//
// A [Loop] owns a set of attached [Event] values. Each tick it fires expired
// timeouts, drains deferred ("next tick") callbacks and pending removals,
// polls an [IOMultiplexer] for readiness, then dispatches reactions to the
// ready events in error, read, write, close order. The loop runs until no
// events remain attached.
//
// Events embed [BaseEvent], and implement whichever reaction interfaces
// they need:
//
//	type ticker struct {
//		reactor.BaseEvent
//		n int
//	}
//
//	func (t *ticker) OnAttach(a *reactor.Attachment) { _ = a.ArmTimeout(time.Second) }
//
//	func (t *ticker) OnTimeout() {
//		t.n++
//		if t.n == 3 {
//			_ = t.Detach()
//			return
//		}
//		_ = t.Attachment().ArmTimeout(time.Second)
//	}
//
// Structural changes requested by callbacks (removal in particular) never
// take effect in the middle of a dispatch. Registrations are referred to by
// generation checked [Handle] values, so a handle to a removed event is
// rejected rather than reaching a different event.
//
// Every user callback runs behind a fault barrier ([Loop.Protect]) which
// recovers panics and logs them via the injected logiface logger.
package reactor

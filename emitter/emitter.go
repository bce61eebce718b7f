// Package emitter implements typed listener registration and dispatch, on
// top of a loop that provides deferred execution and a fault barrier.
//
// Not safe for concurrent use. Like everything attached to a loop, a Signal
// must only be used from the loop's goroutine.
package emitter

// Scheduler is implemented by *reactor.Loop.
type Scheduler interface {
	// NextTick schedules fn to run at the loop's next drain point.
	NextTick(fn func())
	// Protect runs fn, recovering (and reporting) any panic.
	Protect(category string, fn func()) bool
}

// ListenerID uniquely identifies a listener for removal purposes.
// Function values cannot be compared, so each registration gets an ID.
type ListenerID uint64

type listenerEntry[T any] struct {
	listener func(T)
	id       ListenerID
	once     bool
}

// Signal is a single named notification, carrying a value of type T, with
// any number of listeners. Listeners are called in registration order.
type Signal[T any] struct {
	sched     Scheduler
	name      string
	listeners []listenerEntry[T]
	nextID    ListenerID
}

// NewSignal returns a signal using sched for deferred emission and panic
// recovery. The name is used as the fault category for its listeners. It
// panics if sched is nil.
func NewSignal[T any](name string, sched Scheduler) *Signal[T] {
	if sched == nil {
		panic("emitter: nil scheduler")
	}
	return &Signal[T]{sched: sched, name: name, nextID: 1}
}

// Name returns the signal's name.
func (s *Signal[T]) Name() string { return s.name }

// On registers a listener. Nil listeners are ignored, returning 0.
func (s *Signal[T]) On(listener func(T)) ListenerID {
	return s.add(listener, false)
}

// Once registers a listener that is removed before its first call.
func (s *Signal[T]) Once(listener func(T)) ListenerID {
	return s.add(listener, true)
}

func (s *Signal[T]) add(listener func(T), once bool) ListenerID {
	if listener == nil {
		return 0
	}
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry[T]{listener: listener, id: id, once: once})
	return id
}

// Off removes a listener by ID, returning true if it was registered.
func (s *Signal[T]) Off(id ListenerID) bool {
	for i, entry := range s.listeners {
		if entry.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// ListenerCount returns the number of registered listeners.
func (s *Signal[T]) ListenerCount() int { return len(s.listeners) }

// Emit calls every listener registered at the time of the call,
// synchronously. Listeners added during the emission are not called by it.
// A panicking listener does not prevent the rest from being called.
func (s *Signal[T]) Emit(v T) {
	s.dispatch(s.snapshot(), v)
}

// EmitAsync captures the current listeners and v, and calls them at the
// loop's next drain point.
func (s *Signal[T]) EmitAsync(v T) {
	entries := s.snapshot()
	if len(entries) == 0 {
		return
	}
	s.sched.NextTick(func() { s.dispatch(entries, v) })
}

// snapshot copies the listeners, removing once listeners from the signal
func (s *Signal[T]) snapshot() []listenerEntry[T] {
	if len(s.listeners) == 0 {
		return nil
	}
	entries := make([]listenerEntry[T], len(s.listeners))
	copy(entries, s.listeners)
	kept := s.listeners[:0]
	for _, entry := range s.listeners {
		if !entry.once {
			kept = append(kept, entry)
		}
	}
	clear(s.listeners[len(kept):])
	s.listeners = kept
	return entries
}

func (s *Signal[T]) dispatch(entries []listenerEntry[T], v T) {
	for _, entry := range entries {
		listener := entry.listener
		s.sched.Protect(s.name, func() { listener(v) })
	}
}

package reactor

import (
	"math"
	"time"

	"github.com/joeycumines/logiface"
	"go.uber.org/atomic"
)

// Loop is a single-threaded reactor. It owns a set of attached [Event]
// values, and drives them through ticks made of a timer phase, a deferred
// callback drain, an IO poll and a dispatch of ready events.
//
// Except for [Loop.Stop], Loop methods must only be called from the
// goroutine running the loop (or, before Run, the goroutine that will).
type Loop struct {
	mux      IOMultiplexer
	clock    Clock
	logger   *logiface.Logger[logiface.Event]
	barrier  *faultBarrier
	init     func(l *Loop)
	stop     *atomic.Bool
	deferred deferredQueue
	ready    []Readiness
	registry registry
	timers   timerQueue
	faults   uint64
	state    loopState
	ownsMux  bool
	inTick   bool
	closed   bool
}

// New creates a new loop.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		mux:      cfg.mux,
		clock:    cfg.clock,
		logger:   cfg.logger,
		barrier:  newFaultBarrier(cfg.logger, cfg.faultRates),
		init:     cfg.init,
		stop:     atomic.NewBool(false),
		deferred: newDeferredQueue(),
		ready:    make([]Readiness, 0, cfg.maxEvents),
	}

	if l.clock == nil {
		l.clock = systemClock{}
	}

	if l.mux == nil {
		mux, err := NewPollMultiplexer()
		if err != nil {
			return nil, err
		}
		l.mux = mux
		l.ownsMux = true
	}

	return l, nil
}

// Logger returns the configured logger, which may be nil.
func (l *Loop) Logger() *logiface.Logger[logiface.Event] { return l.logger }

// State returns the current loop state. Safe for concurrent use.
func (l *Loop) State() LoopState { return l.state.Load() }

// Now returns the current time, per the configured clock.
func (l *Loop) Now() time.Time { return l.clock.Now() }

// Len returns the number of attached events.
func (l *Loop) Len() int { return l.registry.count }

// Add attaches an event. The event's descriptor (if any, and if it has a
// non-empty interest mask) is registered with the multiplexer, then its
// [AttachHook] is called.
//
// Add fails, with no change in state, if the event is nil, already attached
// (to any loop), the loop is terminated, or registration fails.
func (l *Loop) Add(ev Event) (*Attachment, error) {
	if ev == nil {
		return nil, l.misuse(ErrNilEvent, 0, "reactor: cannot add nil event")
	}
	if l.state.Load() == StateTerminated {
		return nil, ErrLoopTerminated
	}

	b := ev.base()
	if b.att != nil {
		return nil, l.misuse(ErrEventAttached, b.att.handle, "reactor: event is already attached")
	}

	h, reg := l.registry.alloc()
	reg.event = ev
	reg.reactions = resolveReactions(ev)
	reg.attachment = &Attachment{loop: l, handle: h}

	if err := l.reconcile(h, reg); err != nil {
		l.registry.detach(h, reg)
		return nil, err
	}

	b.att = reg.attachment

	logRegistration(l.logger.Debug(), h, reg.fd).
		Str("events", reg.mask.String()).
		Log("reactor: event attached")

	if hook, ok := ev.(AttachHook); ok {
		att := reg.attachment
		l.Protect("attach", func() { hook.OnAttach(att) })
	}

	return reg.attachment, nil
}

func resolveReactions(ev Event) (r reactions) {
	r.read, _ = ev.(ReadHandler)
	r.write, _ = ev.(WriteHandler)
	r.err, _ = ev.(ErrorHandler)
	r.close, _ = ev.(CloseHandler)
	r.timeout, _ = ev.(TimeoutHandler)
	r.detach, _ = ev.(DetachHook)
	return
}

// RequestRemoval detaches the registration identified by h. The event
// receives no further reactions, its timeout (if any) is cancelled, its
// descriptor is unregistered, and its [DetachHook] is called. The slot
// itself is released at the next drain point.
//
// Repeated requests for the same attachment are no-ops.
func (l *Loop) RequestRemoval(h Handle) error {
	reg := l.registry.lookup(h)
	if reg == nil {
		return l.misuse(ErrStaleHandle, h, "reactor: removal requested for unknown handle")
	}
	if reg.state != regAttached {
		return nil
	}

	l.registry.detach(h, reg)

	if reg.timer != nil {
		l.timers.cancel(reg.timer)
		reg.timer = nil
	}

	l.unregister(h, reg)

	if b := reg.event.base(); b.att == reg.attachment {
		b.att = nil
	}

	logRegistration(l.logger.Debug(), h, reg.fd).
		Log("reactor: event detached")

	if hook := reg.reactions.detach; hook != nil {
		l.Protect("detach", hook.OnDetach)
	}

	return nil
}

// NotifyInterestChanged re-reads the event's descriptor and interest mask,
// and reconciles them with the multiplexer. A changed descriptor is
// unregistered and the new one registered, otherwise only the mask is
// modified.
func (l *Loop) NotifyInterestChanged(h Handle) error {
	reg := l.registry.attached(h)
	if reg == nil {
		return l.misuse(ErrStaleHandle, h, "reactor: interest change for unknown handle")
	}
	return l.reconcile(h, reg)
}

func (l *Loop) reconcile(h Handle, reg *registration) error {
	fd, mask := reg.event.FD(), reg.event.Interest()
	if fd < 0 {
		fd = NoFD
	}

	if fd != reg.fd {
		l.unregister(h, reg)
		reg.fd, reg.mask = NoFD, 0
		if fd >= 0 && mask != 0 {
			if err := l.mux.Register(fd, mask, h); err != nil {
				return l.registrationFailed("register", h, fd, err)
			}
			reg.active = true
		}
		reg.fd, reg.mask = fd, mask
		return nil
	}

	if mask == reg.mask {
		return nil
	}

	switch {
	case reg.active:
		if err := l.mux.Modify(fd, mask, h); err != nil {
			l.unregister(h, reg)
			reg.fd, reg.mask = NoFD, 0
			return l.registrationFailed("modify", h, fd, err)
		}
	case fd >= 0 && mask != 0:
		if err := l.mux.Register(fd, mask, h); err != nil {
			reg.fd, reg.mask = NoFD, 0
			return l.registrationFailed("register", h, fd, err)
		}
		reg.active = true
	}

	reg.mask = mask
	return nil
}

func (l *Loop) unregister(h Handle, reg *registration) {
	if !reg.active {
		return
	}
	reg.active = false
	if err := l.mux.Unregister(reg.fd); err != nil {
		logRegistration(l.logger.Warning(), h, reg.fd).
			Err(err).
			Log("reactor: failed to unregister fd")
	}
}

// ArmTimeout schedules the event's [TimeoutHandler] to be called once, after
// d. Only one timeout may be pending per attachment.
func (l *Loop) ArmTimeout(h Handle, d time.Duration) error {
	reg := l.registry.attached(h)
	if reg == nil {
		return l.misuse(ErrStaleHandle, h, "reactor: timeout armed for unknown handle")
	}
	if reg.timer != nil {
		return l.misuse(ErrTimeoutArmed, h, "reactor: timeout already armed")
	}
	if d < 0 {
		d = 0
	}
	reg.timer = l.timers.arm(h, l.clock.Now().Add(d))
	return nil
}

// CancelTimeout removes a pending timeout.
func (l *Loop) CancelTimeout(h Handle) error {
	reg := l.registry.attached(h)
	if reg == nil {
		return l.misuse(ErrStaleHandle, h, "reactor: timeout cancelled for unknown handle")
	}
	if reg.timer == nil {
		return l.misuse(ErrTimeoutNotArmed, h, "reactor: no timeout to cancel")
	}
	l.timers.cancel(reg.timer)
	reg.timer = nil
	return nil
}

// NextTick schedules fn to run at the next drain point. Callbacks run in
// FIFO order, and callbacks scheduled while draining run in the same drain.
func (l *Loop) NextTick(fn func()) {
	if fn == nil {
		_ = l.misuse(nil, 0, "reactor: nil next tick callback")
		return
	}
	l.deferred.push(fn)
}

// Run runs the loop until no events remain attached, [Loop.Stop] is called,
// or polling fails (returning a [*PollError]).
func (l *Loop) Run() error {
	if l.inTick {
		return l.misuse(ErrLoopRunning, 0, "reactor: run called from within a tick")
	}
	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopRunning
	}

	if fn := l.init; fn != nil {
		l.init = nil
		l.Protect("init", func() { fn(l) })
	}

	l.drainPending()

	for {
		if l.stop.Load() {
			l.stop.Store(false)
			l.logger.Debug().
				Int("attached", l.registry.count).
				Log("reactor: stop requested")
			l.detachAll()
			l.state.TryTransition(StateRunning, StateAwake)
			return nil
		}

		more, err := l.Tick()
		if err != nil {
			// a failed poll has already terminated the loop
			l.state.TryTransition(StateRunning, StateAwake)
			return err
		}
		if !more {
			l.stop.Store(false)
			l.state.TryTransition(StateRunning, StateAwake)
			return nil
		}
	}
}

// Tick runs a single iteration of the loop, reporting whether any events
// remain attached. It may block in the multiplexer.
func (l *Loop) Tick() (bool, error) {
	if l.inTick {
		return false, ErrLoopRunning
	}
	if l.state.Load() == StateTerminated {
		return false, ErrLoopTerminated
	}

	l.inTick = true
	defer func() { l.inTick = false }()

	l.runTimers()

	l.drainPending()

	timeout := l.pollTimeout()
	ready, err := l.mux.Poll(timeout, l.ready[:0])
	if err != nil {
		l.state.Store(StateTerminated)
		l.logger.Crit().
			Err(err).
			Int("timeout_ms", timeout).
			Log("reactor: poll failed, terminating")
		return false, &PollError{Err: err}
	}

	for _, r := range ready {
		l.dispatch(r)
	}
	l.ready = ready[:0]

	l.drainPending()

	return l.registry.count > 0, nil
}

// Stop requests that Run detach all events and return. Safe for concurrent
// use; a blocked poll is interrupted if the multiplexer implements [Waker].
func (l *Loop) Stop() {
	l.stop.Store(true)
	if w, ok := l.mux.(Waker); ok {
		_ = w.Wake()
	}
}

// Close detaches all events and closes the multiplexer (if created by the
// loop). The loop cannot be run afterwards.
func (l *Loop) Close() error {
	if l.state.Load() == StateRunning {
		return ErrLoopRunning
	}
	if l.closed {
		return nil
	}
	l.closed = true

	l.detachAll()
	l.state.Store(StateTerminated)

	if l.ownsMux {
		return l.mux.Close()
	}
	return nil
}

func (l *Loop) detachAll() {
	l.registry.each(func(h Handle, _ *registration) {
		_ = l.RequestRemoval(h)
	})
	l.drainPending()
}

func (l *Loop) runTimers() {
	if l.timers.Len() == 0 {
		return
	}

	now := l.clock.Now()
	// timers armed by the callbacks below wait for the next tick
	limit := l.timers.seq

	for {
		t := l.timers.peek()
		if t == nil || t.seq > limit || t.when.After(now) {
			return
		}
		l.timers.pop()

		reg := l.registry.attached(t.handle)
		if reg == nil || reg.timer != t {
			continue
		}
		reg.timer = nil

		if h := reg.reactions.timeout; h != nil {
			l.Protect("timeout", h.OnTimeout)
		}
	}
}

func (l *Loop) drainPending() {
	l.deferred.drain(func(fn func()) {
		l.Protect("next-tick", fn)
	})
	l.registry.releasePending()
}

// pollTimeout determines how long to block in poll, in milliseconds.
func (l *Loop) pollTimeout() int {
	if l.registry.count == 0 || l.stop.Load() || l.deferred.Len() != 0 {
		return 0
	}

	next := l.timers.peek()
	if next == nil {
		return -1
	}

	delay := next.when.Sub(l.clock.Now())
	if delay <= 0 {
		return 0
	}

	// rounded up, so a timer is never woken for early
	ms := delay / time.Millisecond
	if delay%time.Millisecond != 0 {
		ms++
	}
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

func (l *Loop) dispatch(r Readiness) {
	reg := l.registry.attached(r.Handle)
	if reg == nil {
		return
	}

	rx := reg.reactions
	events := r.Events & (reg.mask | EventError | EventClose)

	if events&EventError != 0 && rx.err != nil {
		l.Protect("error", rx.err.OnError)
	}
	if events&EventRead != 0 && rx.read != nil && reg.state == regAttached {
		l.Protect("read", rx.read.OnRead)
	}
	if events&EventWrite != 0 && rx.write != nil && reg.state == regAttached {
		l.Protect("write", rx.write.OnWrite)
	}
	if events&EventClose != 0 && rx.close != nil && reg.state == regAttached {
		l.Protect("close", rx.close.OnClose)
	}
}

func (l *Loop) misuse(err error, h Handle, msg string) error {
	b := l.logger.Err()
	if err != nil {
		b = b.Err(err)
	}
	if h.Valid() {
		b = b.Str("handle", h.String())
	}
	b.Log(msg)
	return err
}

func (l *Loop) registrationFailed(op string, h Handle, fd int, err error) error {
	logRegistration(l.logger.Err(), h, fd).
		Err(err).
		Str("op", op).
		Log("reactor: multiplexer registration failed")
	return &RegistrationError{Err: err, Op: op, Handle: h, FD: fd}
}

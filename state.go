package reactor

import (
	"time"

	"go.uber.org/atomic"
)

// LoopState represents the current state of the loop.
//
//	StateAwake → StateRunning       [Run()]
//	StateRunning → StateAwake       [Run() returns, no events left or Stop()]
//	StateRunning → StateTerminated  [poll failure]
//	StateAwake → StateTerminated    [Close()]
type LoopState uint32

const (
	// StateAwake indicates the loop is not running, and may be run.
	StateAwake LoopState = iota
	// StateRunning indicates Run is in progress.
	StateRunning
	// StateTerminated indicates the loop has been closed, or failed.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// loopState is read from other goroutines by Stop and State.
type loopState struct {
	v atomic.Uint32
}

func (s *loopState) Load() LoopState { return LoopState(s.v.Load()) }

func (s *loopState) Store(state LoopState) { s.v.Store(uint32(state)) }

// TryTransition performs a CAS from one state to another.
func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CAS(uint32(from), uint32(to))
}

// Clock supplies the current time. It is consulted once per timer phase
// and when arming timeouts.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

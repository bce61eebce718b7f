// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"errors"
	"time"

	"github.com/joeycumines/logiface"
)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger     *logiface.Logger[logiface.Event]
	mux        IOMultiplexer
	clock      Clock
	init       func(l *Loop)
	faultRates map[time.Duration]int
	maxEvents  int
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the structured logger. A nil logger (the default)
// disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMultiplexer sets the IOMultiplexer. The loop does not take ownership:
// [Loop.Close] will not close it. Defaults to a [PollMultiplexer] owned by
// the loop.
func WithMultiplexer(mux IOMultiplexer) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if mux == nil {
			return errors.New("reactor: nil multiplexer")
		}
		opts.mux = mux
		return nil
	}}
}

// WithClock sets the clock used for timeouts. Defaults to the system clock.
func WithClock(clock Clock) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if clock == nil {
			return errors.New("reactor: nil clock")
		}
		opts.clock = clock
		return nil
	}}
}

// WithInit sets a callback run once, at the start of the first [Loop.Run],
// before the first tick. It typically adds events or schedules work.
func WithInit(fn func(l *Loop)) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.init = fn
		return nil
	}}
}

// WithFaultLogRates sets the per-category rate limits applied to logging of
// recovered panics, as accepted by catrate.NewLimiter. An empty map disables
// rate limiting.
func WithFaultLogRates(rates map[time.Duration]int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.faultRates = rates
		return nil
	}}
}

// WithMaxEvents sets the maximum number of readiness results handled per
// poll. Defaults to 256.
func WithMaxEvents(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n <= 0 {
			return errors.New("reactor: max events must be positive")
		}
		opts.maxEvents = n
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		faultRates: map[time.Duration]int{
			time.Second: 10,
			time.Minute: 100,
		},
		maxEvents: 256,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

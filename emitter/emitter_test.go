package emitter_test

import (
	"testing"
	"time"

	reactor "github.com/joeycumines/go-reactor"
	"github.com/joeycumines/go-reactor/emitter"
	"github.com/joeycumines/go-reactor/reactortest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testScheduler queues deferred callbacks until drained
type testScheduler struct {
	queue  []func()
	faults []string
}

func (s *testScheduler) NextTick(fn func()) { s.queue = append(s.queue, fn) }

func (s *testScheduler) Protect(category string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.faults = append(s.faults, category)
			ok = false
		}
	}()
	fn()
	return true
}

func (s *testScheduler) drain() {
	for len(s.queue) != 0 {
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.Protect("next-tick", fn)
	}
}

func TestNewSignal_nilScheduler(t *testing.T) {
	assert.PanicsWithValue(t, "emitter: nil scheduler", func() {
		emitter.NewSignal[int]("data", nil)
	})
}

func TestSignal_Emit(t *testing.T) {
	sched := new(testScheduler)
	sig := emitter.NewSignal[int]("data", sched)
	assert.Equal(t, "data", sig.Name())

	var got []string
	sig.On(func(v int) { got = append(got, "a") })
	sig.On(func(v int) { got = append(got, "b") })
	assert.Equal(t, emitter.ListenerID(0), sig.On(nil))
	assert.Equal(t, 2, sig.ListenerCount())

	sig.Emit(1)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Empty(t, sched.queue)
}

func TestSignal_EmitAsync(t *testing.T) {
	sched := new(testScheduler)
	sig := emitter.NewSignal[string]("data", sched)

	var got []string
	sig.On(func(v string) { got = append(got, v) })

	sig.EmitAsync("x")
	sig.EmitAsync("y")
	assert.Empty(t, got)

	// listeners registered after the emission are not called by it
	sig.On(func(v string) { got = append(got, "late:"+v) })

	sched.drain()
	assert.Equal(t, []string{"x", "y"}, got)
}

func TestSignal_EmitAsync_noListeners(t *testing.T) {
	sched := new(testScheduler)
	sig := emitter.NewSignal[int]("data", sched)
	sig.EmitAsync(1)
	assert.Empty(t, sched.queue)
}

func TestSignal_Once(t *testing.T) {
	sched := new(testScheduler)
	sig := emitter.NewSignal[int]("data", sched)

	var calls []int
	sig.Once(func(v int) {
		calls = append(calls, v)
		// already removed, so this does not recurse
		sig.Emit(v + 100)
	})
	sig.On(func(v int) { calls = append(calls, -v) })

	sig.Emit(1)
	sig.Emit(2)
	assert.Equal(t, []int{1, -101, -1, -2}, calls)
	assert.Equal(t, 1, sig.ListenerCount())
}

func TestSignal_Off(t *testing.T) {
	sched := new(testScheduler)
	sig := emitter.NewSignal[int]("data", sched)

	var got []string
	a := sig.On(func(int) { got = append(got, "a") })
	sig.On(func(int) { got = append(got, "b") })

	assert.True(t, sig.Off(a))
	assert.False(t, sig.Off(a))
	assert.False(t, sig.Off(0))

	sig.Emit(0)
	assert.Equal(t, []string{"b"}, got)
}

func TestSignal_addDuringEmit(t *testing.T) {
	sched := new(testScheduler)
	sig := emitter.NewSignal[int]("data", sched)

	var got []string
	sig.On(func(int) {
		got = append(got, "a")
		sig.On(func(int) { got = append(got, "added") })
	})

	sig.Emit(0)
	assert.Equal(t, []string{"a"}, got)
	sig.Emit(0)
	assert.Equal(t, []string{"a", "a", "added"}, got)
}

func TestSignal_panicIsolated(t *testing.T) {
	sched := new(testScheduler)
	sig := emitter.NewSignal[int]("error", sched)

	var got []int
	sig.On(func(int) { panic("boom") })
	sig.On(func(v int) { got = append(got, v) })

	sig.Emit(7)
	assert.Equal(t, []int{7}, got)
	assert.Equal(t, []string{"error"}, sched.faults)
}

func TestSignal_onLoop(t *testing.T) {
	clock := reactortest.NewManualClock(time.Time{})
	loop, err := reactor.New(
		reactor.WithMultiplexer(reactortest.NewMultiplexer(clock)),
		reactor.WithClock(clock),
	)
	require.NoError(t, err)

	sig := emitter.NewSignal[int]("tick", loop)

	var got []int
	sig.On(func(v int) { got = append(got, v) })
	sig.On(func(int) { panic("boom") })

	_, err = reactor.AfterFunc(loop, time.Second, func() {
		sig.EmitAsync(1)
		sig.Emit(2)
	})
	require.NoError(t, err)

	require.NoError(t, loop.Run())
	assert.Equal(t, []int{2, 1}, got)
	assert.Equal(t, uint64(2), loop.Faults())
}

package reactor_test

import (
	"testing"
	"time"

	reactor "github.com/joeycumines/go-reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_oneShot(t *testing.T) {
	h := newHarness(t)
	start := h.clock.Now()

	var firedAt []time.Duration
	timer, err := reactor.AfterFunc(h.loop, 250*time.Millisecond, func() {
		firedAt = append(firedAt, h.clock.Now().Sub(start))
	})
	require.NoError(t, err)
	assert.True(t, timer.Attached())

	require.NoError(t, h.loop.Run())

	assert.Equal(t, []time.Duration{250 * time.Millisecond}, firedAt)
	assert.False(t, timer.Attached())
	assert.NoError(t, timer.Stop())
}

func TestTimer_stopBeforeExpiry(t *testing.T) {
	h := newHarness(t)
	var fired bool
	timer, err := reactor.AfterFunc(h.loop, time.Second, func() { fired = true })
	require.NoError(t, err)

	require.NoError(t, timer.Stop())
	require.NoError(t, h.loop.Run())

	assert.False(t, fired)
	assert.Equal(t, []int{0}, h.mux.Polls())
}

func TestTimer_interval(t *testing.T) {
	h := newHarness(t)
	start := h.clock.Now()

	var ticks []time.Duration
	var timer *reactor.Timer
	timer = reactor.NewInterval(100*time.Millisecond, func() {
		ticks = append(ticks, h.clock.Now().Sub(start))
		if len(ticks) == 3 {
			assert.NoError(t, timer.Stop())
		}
	})
	_, err := h.loop.Add(timer)
	require.NoError(t, err)

	require.NoError(t, h.loop.Run())

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}, ticks)
}

func TestTimer_readd(t *testing.T) {
	h := newHarness(t)
	var fired int
	timer := reactor.NewTimer(10*time.Millisecond, func() { fired++ })

	_, err := h.loop.Add(timer)
	require.NoError(t, err)
	require.NoError(t, h.loop.Run())

	// the delay restarts on each attach
	_, err = h.loop.Add(timer)
	require.NoError(t, err)
	require.NoError(t, h.loop.Run())

	assert.Equal(t, 2, fired)
}

func TestTimer_nilFunc(t *testing.T) {
	h := newHarness(t)
	_, err := reactor.AfterFunc(h.loop, 0, nil)
	require.NoError(t, err)
	require.NoError(t, h.loop.Run())
	assert.Equal(t, uint64(0), h.loop.Faults())
}

func TestTimer_panicDoesNotStopLoop(t *testing.T) {
	h := newHarness(t)
	var fired bool
	_, err := reactor.AfterFunc(h.loop, 10*time.Millisecond, func() { panic("boom") })
	require.NoError(t, err)
	_, err = reactor.AfterFunc(h.loop, 20*time.Millisecond, func() { fired = true })
	require.NoError(t, err)

	require.NoError(t, h.loop.Run())

	assert.True(t, fired)
	assert.Equal(t, uint64(1), h.loop.Faults())
	assert.Contains(t, h.logs.String(), `"category":"timeout"`)
}

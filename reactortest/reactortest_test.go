package reactortest

import (
	"testing"
	"time"

	reactor "github.com/joeycumines/go-reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiplexer_Poll(t *testing.T) {
	clock := NewManualClock(time.Time{})
	start := clock.Now()
	m := NewMultiplexer(clock)

	require.NoError(t, m.Register(3, reactor.EventRead, 11))
	assert.ErrorIs(t, m.Register(3, reactor.EventRead, 12), reactor.ErrFDAlreadyRegistered)

	m.Queue(Ready{FD: 3, Events: reactor.EventRead}, Ready{FD: 4, Events: reactor.EventRead})
	ready, err := m.Poll(-1, nil)
	require.NoError(t, err)
	// fd 4 is not registered
	assert.Equal(t, []reactor.Readiness{{Handle: 11, Events: reactor.EventRead}}, ready)

	ready, err = m.Poll(250, ready)
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.Equal(t, 250*time.Millisecond, clock.Now().Sub(start))

	_, err = m.Poll(-1, nil)
	assert.ErrorIs(t, err, ErrBlockedForever)

	require.NoError(t, m.Wake())
	_, err = m.Poll(-1, nil)
	assert.NoError(t, err)

	assert.Equal(t, []int{-1, 250, -1, -1}, m.Polls())
	assert.Equal(t, 1, m.Wakes())
}

func TestMultiplexer_ops(t *testing.T) {
	m := NewMultiplexer(nil)

	require.NoError(t, m.Register(1, reactor.EventRead, 5))
	require.NoError(t, m.Modify(1, reactor.EventWrite, 6))
	require.NoError(t, m.Unregister(1))
	assert.ErrorIs(t, m.Unregister(1), reactor.ErrFDNotRegistered)
	assert.ErrorIs(t, m.Modify(1, reactor.EventRead, 6), reactor.ErrFDNotRegistered)

	assert.Equal(t, []Op{
		{Kind: OpRegister, FD: 1, Events: reactor.EventRead, Handle: 5},
		{Kind: OpModify, FD: 1, Events: reactor.EventWrite, Handle: 6},
		{Kind: OpUnregister, FD: 1},
	}, m.Ops())

	require.NoError(t, m.Close())
	assert.Equal(t, 1, m.Closed())
	_, err := m.Poll(0, nil)
	assert.ErrorIs(t, err, reactor.ErrPollerClosed)
}

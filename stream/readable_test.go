package stream_test

import (
	"testing"
	"time"

	reactor "github.com/joeycumines/go-reactor"
	"github.com/joeycumines/go-reactor/emitter"
	"github.com/joeycumines/go-reactor/reactortest"
	"github.com/joeycumines/go-reactor/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testScheduler struct {
	queue []func()
}

func (s *testScheduler) NextTick(fn func()) { s.queue = append(s.queue, fn) }

func (s *testScheduler) Protect(_ string, fn func()) (ok bool) {
	defer func() {
		if recover() != nil {
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

type recorder struct {
	chunks [][]byte
	ends   int
}

func (r *recorder) listen(rs *stream.Readable) {
	rs.OnData(func(chunk []byte) { r.chunks = append(r.chunks, chunk) })
	rs.OnEnd(func() { r.ends++ })
}

func TestReadable_pushWhilePausedThenResume(t *testing.T) {
	sched := new(testScheduler)
	rs := stream.NewReadable(sched, nil)
	var rec recorder
	rec.listen(rs)

	assert.True(t, rs.IsPaused())
	assert.False(t, rs.Push([]byte{1}))
	assert.False(t, rs.Push([]byte{2}))
	assert.False(t, rs.Push([]byte{3}))
	assert.Empty(t, rec.chunks)
	assert.Equal(t, 3, rs.Buffered())

	rs.Resume()
	// never from within Resume
	assert.Empty(t, rec.chunks)

	sched.drain()
	assert.Equal(t, [][]byte{{1, 2, 3}}, rec.chunks)
	assert.Equal(t, 0, rs.Buffered())
	assert.Equal(t, 0, rec.ends)
}

func TestReadable_flowingPushEmitsSynchronously(t *testing.T) {
	sched := new(testScheduler)
	rs := stream.NewReadable(sched, nil)
	var rec recorder
	rec.listen(rs)

	rs.Resume()
	sched.drain()

	chunk := []byte("abc")
	assert.True(t, rs.Push(chunk))
	require.Equal(t, [][]byte{[]byte("abc")}, rec.chunks)

	// the chunk is copied
	chunk[0] = 'x'
	assert.Equal(t, "abc", string(rec.chunks[0]))
}

func TestReadable_pushBehindPendingFlush(t *testing.T) {
	sched := new(testScheduler)
	rs := stream.NewReadable(sched, nil, stream.WithHighWaterMark(4))
	var rec recorder
	rec.listen(rs)

	rs.Push([]byte("ab"))
	rs.Resume()

	// flush still pending, so ordering is preserved by buffering
	assert.True(t, rs.Push([]byte("c")))
	assert.False(t, rs.Push([]byte("d")))
	assert.Empty(t, rec.chunks)

	sched.drain()
	assert.Equal(t, [][]byte{[]byte("abcd")}, rec.chunks)
}

func TestReadable_pauseBeforeFlush(t *testing.T) {
	sched := new(testScheduler)
	var reads int
	rs := stream.NewReadable(sched, stream.SourceFunc(func() { reads++ }))
	var rec recorder
	rec.listen(rs)

	rs.Push([]byte("a"))
	rs.Resume()
	rs.Pause()
	sched.drain()

	assert.Empty(t, rec.chunks)
	assert.Equal(t, 0, reads)
	assert.Equal(t, 1, rs.Buffered())

	rs.Resume()
	sched.drain()
	assert.Equal(t, [][]byte{[]byte("a")}, rec.chunks)
	assert.Equal(t, 1, reads)
}

func TestReadable_pauseFromDataListener(t *testing.T) {
	sched := new(testScheduler)
	var reads int
	rs := stream.NewReadable(sched, stream.SourceFunc(func() { reads++ }))
	var got []string
	rs.OnData(func(chunk []byte) {
		got = append(got, string(chunk))
		rs.Pause()
	})

	rs.Resume()
	sched.drain()
	assert.Equal(t, 1, reads)

	assert.False(t, rs.Push([]byte("a")))
	assert.False(t, rs.Push([]byte("b")))
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, rs.Buffered())

	rs.Resume()
	sched.drain()
	assert.Equal(t, []string{"a", "b"}, got)
	assert.True(t, rs.IsPaused())
	// paused again by the listener, so the source is not asked for more
	assert.Equal(t, 1, reads)
}

func TestReadable_sourceReadAfterFlush(t *testing.T) {
	sched := new(testScheduler)
	var rs *stream.Readable
	var n int
	rs = stream.NewReadable(sched, stream.SourceFunc(func() {
		n++
		if n == 1 {
			rs.Push([]byte("more"))
			rs.End()
		}
	}))
	var rec recorder
	rec.listen(rs)

	rs.Resume()
	sched.drain()

	assert.Equal(t, 1, n)
	assert.Equal(t, [][]byte{[]byte("more")}, rec.chunks)
	assert.Equal(t, 1, rec.ends)
}

func TestReadable_endEmptyBuffer(t *testing.T) {
	sched := new(testScheduler)
	rs := stream.NewReadable(sched, nil)
	var rec recorder
	rec.listen(rs)

	rs.End()
	rs.End()
	assert.True(t, rs.IsEnded())
	assert.Equal(t, 0, rec.ends)

	sched.drain()
	assert.Equal(t, 1, rec.ends)
	assert.False(t, rs.Push([]byte("late")))
	assert.Equal(t, 0, rs.Buffered())
}

func TestReadable_endDeferredUntilDrained(t *testing.T) {
	sched := new(testScheduler)
	rs := stream.NewReadable(sched, nil)
	var order []string
	rs.OnData(func(chunk []byte) { order = append(order, "data:"+string(chunk)) })
	rs.OnEnd(func() { order = append(order, "end") })

	rs.Push([]byte("xy"))
	rs.End()
	rs.End()
	sched.drain()
	assert.Empty(t, order)

	rs.Resume()
	sched.drain()
	assert.Equal(t, []string{"data:xy", "end"}, order)

	rs.Pause()
	rs.Resume()
	sched.drain()
	assert.Equal(t, []string{"data:xy", "end"}, order)
}

func TestReadable_offListeners(t *testing.T) {
	sched := new(testScheduler)
	rs := stream.NewReadable(sched, nil)
	var rec recorder
	dataID := rs.OnData(func(chunk []byte) { rec.chunks = append(rec.chunks, chunk) })
	endID := rs.OnEnd(func() { rec.ends++ })
	assert.Equal(t, emitter.ListenerID(0), rs.OnEnd(nil))

	assert.True(t, rs.OffData(dataID))
	assert.True(t, rs.OffEnd(endID))

	rs.Resume()
	rs.Push([]byte("a"))
	rs.End()
	sched.drain()

	assert.Empty(t, rec.chunks)
	assert.Equal(t, 0, rec.ends)
}

func TestReadable_onLoop(t *testing.T) {
	clock := reactortest.NewManualClock(time.Time{})
	loop, err := reactor.New(
		reactor.WithMultiplexer(reactortest.NewMultiplexer(clock)),
		reactor.WithClock(clock),
	)
	require.NoError(t, err)

	rs := stream.NewReadable(loop, nil)
	var got []string
	var ended bool
	rs.OnData(func(chunk []byte) { got = append(got, string(chunk)) })
	rs.OnEnd(func() { ended = true })

	rs.Push([]byte("1"))
	rs.Push([]byte("2"))

	_, err = reactor.AfterFunc(loop, 10*time.Millisecond, func() {
		rs.Resume()
		assert.Empty(t, got)
		rs.Push([]byte("3"))
	})
	require.NoError(t, err)

	_, err = reactor.AfterFunc(loop, 20*time.Millisecond, func() {
		assert.True(t, rs.Push([]byte("4")))
		rs.End()
	})
	require.NoError(t, err)

	require.NoError(t, loop.Run())
	assert.Equal(t, []string{"123", "4"}, got)
	assert.True(t, ended)
}

func TestReadable_pushFromDataListenerDuringFlush(t *testing.T) {
	sched := new(testScheduler)
	var reads int
	rs := stream.NewReadable(sched, stream.SourceFunc(func() { reads++ }))

	var first, second []string
	rs.OnData(func(chunk []byte) {
		first = append(first, string(chunk))
		if len(first) == 1 {
			assert.True(t, rs.Push([]byte("B")))
		}
	})
	rs.OnData(func(chunk []byte) { second = append(second, string(chunk)) })

	rs.Push([]byte("A"))
	rs.Resume()
	sched.drain()

	assert.Equal(t, []string{"A", "B"}, first)
	assert.Equal(t, []string{"A", "B"}, second)
	assert.Equal(t, 1, reads)
}

func TestReadable_pushFromDataListenerWhileFlowing(t *testing.T) {
	sched := new(testScheduler)
	rs := stream.NewReadable(sched, nil)
	rs.Resume()
	sched.drain()

	var first, second []string
	rs.OnData(func(chunk []byte) {
		first = append(first, string(chunk))
		if len(first) == 1 {
			rs.Push([]byte("B"))
			rs.End()
		}
	})
	rs.OnData(func(chunk []byte) { second = append(second, string(chunk)) })
	var ends int
	rs.OnEnd(func() { ends++ })

	// ended by the listener
	assert.False(t, rs.Push([]byte("A")))
	assert.Equal(t, []string{"A"}, second)
	assert.Equal(t, 1, rs.Buffered())

	sched.drain()
	assert.Equal(t, []string{"A", "B"}, first)
	assert.Equal(t, []string{"A", "B"}, second)
	assert.Equal(t, 1, ends)
}

func TestReadable_pauseAndResumeFromDataListener(t *testing.T) {
	sched := new(testScheduler)
	var reads int
	rs := stream.NewReadable(sched, stream.SourceFunc(func() { reads++ }))

	var first, second []string
	rs.OnData(func(chunk []byte) {
		first = append(first, string(chunk))
		if len(first) == 1 {
			rs.Pause()
			rs.Push([]byte("B"))
			rs.Resume()
		}
	})
	rs.OnData(func(chunk []byte) { second = append(second, string(chunk)) })

	rs.Push([]byte("A"))
	rs.Resume()
	sched.drain()

	assert.Equal(t, []string{"A", "B"}, second)
	// one flush delivers B, and only then is the source asked for more
	assert.Equal(t, 1, reads)
}

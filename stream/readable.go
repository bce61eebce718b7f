// Package stream implements the readable half of a flow controlled byte
// stream.
//
// A producer calls [Readable.Push] for each chunk, and stops producing when
// it returns false. The consumer controls the flow with [Readable.Pause] and
// [Readable.Resume]. When flowing resumes, buffered data is delivered from
// the loop's deferred queue, never from within the call to Resume, and the
// producer is then signalled (via [Source]) to produce more.
package stream

import (
	"github.com/joeycumines/go-reactor/emitter"
)

// DefaultHighWaterMark is the buffered size at which Push starts reporting
// backpressure while flowing.
const DefaultHighWaterMark = 16 * 1024

// Source is the producer side of a [Readable].
type Source interface {
	// Read is called when the consumer resumes the flow and the buffer has
	// been delivered. The producer should start pushing again.
	Read()
}

// SourceFunc adapts a function to [Source].
type SourceFunc func()

func (f SourceFunc) Read() { f() }

type options struct {
	highWaterMark int
}

// Option configures a [Readable].
type Option func(*options)

// WithHighWaterMark sets the high water mark. Non-positive values select
// [DefaultHighWaterMark].
func WithHighWaterMark(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = DefaultHighWaterMark
		}
		o.highWaterMark = n
	}
}

// Readable buffers pushed data while paused, and emits it as "data"
// notifications while flowing. It starts paused.
type Readable struct {
	sched          emitter.Scheduler
	source         Source
	data           *emitter.Signal[[]byte]
	end            *emitter.Signal[struct{}]
	buf            []byte
	highWaterMark  int
	flowing        bool
	ended          bool
	endEmitted     bool
	flushScheduled bool
	emitting       bool
}

// NewReadable returns a paused Readable. The source may be nil.
func NewReadable(sched emitter.Scheduler, source Source, opts ...Option) *Readable {
	cfg := options{highWaterMark: DefaultHighWaterMark}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Readable{
		sched:         sched,
		source:        source,
		data:          emitter.NewSignal[[]byte]("data", sched),
		end:           emitter.NewSignal[struct{}]("end", sched),
		highWaterMark: cfg.highWaterMark,
	}
}

// OnData registers a listener for data. Each chunk passed to the listener
// is owned by it.
func (r *Readable) OnData(fn func(chunk []byte)) emitter.ListenerID {
	return r.data.On(fn)
}

// OnEnd registers a listener for the end of the stream, which is emitted at
// most once, after all data.
func (r *Readable) OnEnd(fn func()) emitter.ListenerID {
	if fn == nil {
		return 0
	}
	return r.end.On(func(struct{}) { fn() })
}

// OffData removes a data listener.
func (r *Readable) OffData(id emitter.ListenerID) bool { return r.data.Off(id) }

// OffEnd removes an end listener.
func (r *Readable) OffEnd(id emitter.ListenerID) bool { return r.end.Off(id) }

// Push delivers a chunk from the producer. The chunk is copied. It returns
// false if the producer should stop pushing until [Source.Read] is called,
// i.e. if the stream is paused, ended, or has buffered at least the high
// water mark.
func (r *Readable) Push(chunk []byte) bool {
	if r.ended {
		return false
	}

	if !r.flowing {
		r.buf = append(r.buf, chunk...)
		return false
	}

	if r.flushScheduled || r.emitting || len(r.buf) != 0 {
		// keep ordering behind the pending or in progress emission
		r.buf = append(r.buf, chunk...)
		return len(r.buf) < r.highWaterMark
	}

	if len(chunk) != 0 {
		r.emit(append([]byte(nil), chunk...))
	}

	return r.flowing && !r.ended
}

// End marks the end of the data. If nothing is buffered, end is emitted
// asynchronously, otherwise once the buffer has been delivered.
func (r *Readable) End() {
	if r.ended {
		return
	}
	r.ended = true
	if len(r.buf) == 0 && !r.flushScheduled {
		r.emitEnd()
	}
}

func (r *Readable) emitEnd() {
	if r.endEmitted {
		return
	}
	r.endEmitted = true
	r.end.EmitAsync(struct{}{})
}

// Pause stops the flow. Data pushed while paused is buffered.
func (r *Readable) Pause() {
	r.flowing = false
}

// Resume starts the flow. Buffered data is delivered as a single chunk,
// from the loop's deferred queue.
func (r *Readable) Resume() {
	if r.flowing {
		return
	}
	r.flowing = true
	r.scheduleFlush()
}

func (r *Readable) scheduleFlush() {
	if !r.flushScheduled {
		r.flushScheduled = true
		r.sched.NextTick(r.flush)
	}
}

// emit delivers a chunk to the data listeners. Chunks pushed by listeners
// are buffered, and delivered by a single follow-up flush.
func (r *Readable) emit(chunk []byte) {
	r.emitting = true
	r.data.Emit(chunk)
	r.emitting = false
	if r.flowing && len(r.buf) != 0 {
		r.scheduleFlush()
	}
}

func (r *Readable) flush() {
	r.flushScheduled = false
	if !r.flowing {
		return
	}

	if len(r.buf) != 0 {
		chunk := r.buf
		r.buf = nil
		r.emit(chunk)
		if !r.flowing || r.flushScheduled {
			// paused, or the follow-up flush takes over
			return
		}
	}

	if r.ended {
		r.emitEnd()
		return
	}

	if r.source != nil {
		r.source.Read()
	}
}

// IsPaused reports whether the stream is paused.
func (r *Readable) IsPaused() bool { return !r.flowing }

// IsEnded reports whether End has been called.
func (r *Readable) IsEnded() bool { return r.ended }

// Buffered returns the number of buffered bytes.
func (r *Readable) Buffered() int { return len(r.buf) }

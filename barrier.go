package reactor

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// faultBarrier logs recovered panics, rate limited per category.
type faultBarrier struct {
	logger     *logiface.Logger[logiface.Event]
	limiter    *catrate.Limiter
	suppressed map[string]int
}

func newFaultBarrier(logger *logiface.Logger[logiface.Event], rates map[time.Duration]int) *faultBarrier {
	b := &faultBarrier{logger: logger}
	if len(rates) != 0 {
		b.limiter = catrate.NewLimiter(rates)
		b.suppressed = make(map[string]int)
	}
	return b
}

func (b *faultBarrier) report(err *PanicError) {
	log := b.logger.Err()
	if !log.Enabled() {
		return
	}
	if b.limiter != nil {
		if _, ok := b.limiter.Allow(err.Category); !ok {
			b.suppressed[err.Category]++
			log.Release()
			return
		}
		if n := b.suppressed[err.Category]; n != 0 {
			delete(b.suppressed, err.Category)
			log = log.Int("suppressed", n)
		}
	}
	log.Err(err).
		Str("category", err.Category).
		Log("reactor: callback panicked")
}

// Protect runs fn, recovering and logging any panic. It returns false if fn
// panicked. Every callback the loop invokes goes through Protect, which is
// exported so that code layered on the loop (emitters, streams) shares the
// same fault handling.
func (l *Loop) Protect(category string, fn func()) (ok bool) {
	if fn == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			l.faults++
			l.barrier.report(&PanicError{Value: r, Category: category})
		}
	}()
	fn()
	return true
}

// Faults returns the number of panics recovered so far.
func (l *Loop) Faults() uint64 {
	return l.faults
}

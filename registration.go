package reactor

import (
	"strconv"
)

// Handle identifies a registration within a [Loop]. It packs the arena slot
// index with a generation counter, so a handle to a freed (or reused) slot is
// detected as stale. The zero value is never valid.
type Handle uint64

func makeHandle(index int, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(uint32(index+1)))
}

func (h Handle) index() int { return int(uint32(h)) - 1 }

func (h Handle) generation() uint32 { return uint32(h >> 32) }

// Valid reports whether h could refer to a registration. It does not check
// that the registration is live.
func (h Handle) Valid() bool { return uint32(h) != 0 }

func (h Handle) String() string {
	if !h.Valid() {
		return "#invalid"
	}
	return "#" + strconv.Itoa(h.index()) + "." + strconv.FormatUint(uint64(h.generation()), 10)
}

type regState uint8

const (
	regFree regState = iota
	regAttached
	regDetached
)

// reactions are resolved once, at attach time
type reactions struct {
	read    ReadHandler
	write   WriteHandler
	err     ErrorHandler
	close   CloseHandler
	timeout TimeoutHandler
	detach  DetachHook
}

type registration struct {
	event      Event
	attachment *Attachment
	timer      *timerEntry
	reactions  reactions
	// fd and mask are what was last applied to the multiplexer
	fd         int
	mask       IOEvents
	generation uint32
	state      regState
	active     bool
}

// registry is an arena of registrations, with a free list and a staging
// list of slots awaiting release.
type registry struct {
	slots   []*registration
	free    []int
	pending []int
	count   int
}

func (r *registry) alloc() (Handle, *registration) {
	var idx int
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = len(r.slots)
		r.slots = append(r.slots, &registration{})
	}
	reg := r.slots[idx]
	reg.state = regAttached
	reg.fd = NoFD
	r.count++
	return makeHandle(idx, reg.generation), reg
}

// lookup returns the registration for h, or nil if h is stale. Detached
// registrations awaiting release are still returned.
func (r *registry) lookup(h Handle) *registration {
	idx := h.index()
	if idx < 0 || idx >= len(r.slots) {
		return nil
	}
	reg := r.slots[idx]
	if reg.state == regFree || reg.generation != h.generation() {
		return nil
	}
	return reg
}

// attached returns the registration for h if it is still attached.
func (r *registry) attached(h Handle) *registration {
	if reg := r.lookup(h); reg != nil && reg.state == regAttached {
		return reg
	}
	return nil
}

// detach moves an attached registration to the staging list.
func (r *registry) detach(h Handle, reg *registration) {
	reg.state = regDetached
	r.count--
	r.pending = append(r.pending, h.index())
}

// releasePending frees every staged slot.
func (r *registry) releasePending() {
	for _, idx := range r.pending {
		reg := r.slots[idx]
		*reg = registration{generation: reg.generation + 1}
		r.free = append(r.free, idx)
	}
	r.pending = r.pending[:0]
}

// each calls fn for every attached registration, in slot order.
func (r *registry) each(fn func(h Handle, reg *registration)) {
	for idx, reg := range r.slots {
		if reg.state == regAttached {
			fn(makeHandle(idx, reg.generation), reg)
		}
	}
}

package reactor

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// NewJSONLogger returns a logger writing one JSON object per line to w, for
// use with [WithLogger]. Events below level are discarded.
func NewJSONLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// attaches the common registration fields
func logRegistration(b *logiface.Builder[logiface.Event], h Handle, fd int) *logiface.Builder[logiface.Event] {
	return b.Str("handle", h.String()).Int("fd", fd)
}

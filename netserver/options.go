package netserver

import (
	"github.com/joeycumines/go-reactor/stream"
)

const (
	defaultBacklog        = 511
	defaultReadBufferSize = 64 * 1024
)

type options struct {
	backlog        int
	readBufferSize int
	highWaterMark  int
	allowHalfOpen  bool
	pauseOnConnect bool
}

// Option configures a [Server].
type Option func(c *options)

// WithAllowHalfOpen keeps accepted sockets open after the peer finishes
// sending. By default a socket closes itself when its read side ends.
func WithAllowHalfOpen(allow bool) Option {
	return func(c *options) { c.allowHalfOpen = allow }
}

// WithPauseOnConnect starts accepted sockets paused, so that no data is
// read until [Socket.Resume] is called.
func WithPauseOnConnect(pause bool) Option {
	return func(c *options) { c.pauseOnConnect = pause }
}

// WithBacklog sets the listen backlog. Defaults to 511.
func WithBacklog(n int) Option {
	return func(c *options) {
		if n > 0 {
			c.backlog = n
		}
	}
}

// WithReadBufferSize sets the size of the buffer used to read from sockets.
// The buffer is shared by every socket of the server. Defaults to 64 KiB.
func WithReadBufferSize(n int) Option {
	return func(c *options) {
		if n > 0 {
			c.readBufferSize = n
		}
	}
}

// WithHighWaterMark sets the high water mark of accepted sockets.
func WithHighWaterMark(n int) Option {
	return func(c *options) { c.highWaterMark = n }
}

func resolveOptions(opts []Option) options {
	c := options{
		backlog:        defaultBacklog,
		readBufferSize: defaultReadBufferSize,
		highWaterMark:  stream.DefaultHighWaterMark,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

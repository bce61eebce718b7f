package netserver

import (
	"testing"

	"github.com/joeycumines/go-reactor/stream"
	"github.com/stretchr/testify/assert"
)

func TestResolveOptions(t *testing.T) {
	assert.Equal(t, options{
		backlog:        511,
		readBufferSize: 64 * 1024,
		highWaterMark:  stream.DefaultHighWaterMark,
	}, resolveOptions(nil))

	assert.Equal(t, options{
		backlog:        16,
		readBufferSize: 512,
		highWaterMark:  1024,
		allowHalfOpen:  true,
		pauseOnConnect: true,
	}, resolveOptions([]Option{
		WithBacklog(16),
		nil,
		WithReadBufferSize(512),
		WithHighWaterMark(1024),
		WithAllowHalfOpen(true),
		WithPauseOnConnect(true),
	}))

	// non-positive sizes keep the defaults
	c := resolveOptions([]Option{WithBacklog(0), WithReadBufferSize(-1)})
	assert.Equal(t, 511, c.backlog)
	assert.Equal(t, 64*1024, c.readBufferSize)
}

func TestOpError(t *testing.T) {
	err := &OpError{Op: "bind", Err: assert.AnError}
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "netserver: bind: "+assert.AnError.Error(), err.Error())
}

//go:build !linux && !darwin

package reactor

type pollMux struct{}

func (p *pollMux) init() error { return ErrUnsupportedPlatform }

func (p *pollMux) Register(int, IOEvents, Handle) error { return ErrUnsupportedPlatform }

func (p *pollMux) Unregister(int) error { return ErrUnsupportedPlatform }

func (p *pollMux) Modify(int, IOEvents, Handle) error { return ErrUnsupportedPlatform }

func (p *pollMux) Poll(_ int, buf []Readiness) ([]Readiness, error) {
	return buf[:0], ErrUnsupportedPlatform
}

func (p *pollMux) Wake() error { return ErrUnsupportedPlatform }

func (p *pollMux) Close() error { return nil }

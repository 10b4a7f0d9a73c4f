package transport

import "time"

// Options configures transports (shared across TCP/WS where applicable)
type Options struct {
	OutBuffer    int           // session outgoing channel buffer size
	ReadTimeout  time.Duration // per-read deadline; 0 to disable
	WriteTimeout time.Duration // per-write deadline; 0 to disable
	MaxFrameSize int           // bytes, default 1MB
	Framing      string        // tcp only: line|length
}

const (
	defaultOutBuffer    = 256
	defaultMaxFrameSize = 1 << 20
)

func (o Options) withDefaults() Options {
	if o.OutBuffer <= 0 {
		o.OutBuffer = defaultOutBuffer
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = defaultMaxFrameSize
	}
	if o.Framing == "" {
		o.Framing = FramingLine
	}
	return o
}

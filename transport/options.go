package transport

import (
	"time"

	"github.com/arloliu/go-linkwatch/logger"
)

type options struct {
	logger         logger.Logger
	writeTimeout   time.Duration
	readBufferSize int
	keepAlive      time.Duration
	dialTimeout    time.Duration
}

func newOptions(opts []Option) options {
	o := options{
		logger:         logger.GetLogger(),
		writeTimeout:   5 * time.Second,
		readBufferSize: 4096,
		keepAlive:      30 * time.Second,
		dialTimeout:    5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&o)
		}
	}

	return o
}

// Option represents a functional option for configuring a transport.
type Option interface {
	apply(*options)
}

type optFunc func(*options)

func (f optFunc) apply(o *options) { f(o) }

// WithLogger sets the transport logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithWriteTimeout sets the deadline of a single write. 0 disables it.
//
// The default value is 5 seconds.
func WithWriteTimeout(d time.Duration) Option {
	return optFunc(func(o *options) {
		o.writeTimeout = max(d, 0)
	})
}

// WithReadBufferSize sets the size of the read buffer, which bounds the size of one delivered payload.
//
// The default value is 4096.
func WithReadBufferSize(n int) Option {
	return optFunc(func(o *options) {
		if n > 0 {
			o.readBufferSize = n
		}
	})
}

// WithKeepAlive sets the TCP keep-alive period. A negative value disables keep-alive.
//
// The default value is 30 seconds.
func WithKeepAlive(d time.Duration) Option {
	return optFunc(func(o *options) {
		o.keepAlive = d
	})
}

// WithDialTimeout sets the timeout of a reopen triggered by Send on datagram and serial transports.
//
// The default value is 5 seconds.
func WithDialTimeout(d time.Duration) Option {
	return optFunc(func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	})
}

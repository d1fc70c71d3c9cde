package linkwatch

import (
	"errors"
	"fmt"
	"time"
)

// EndpointConfig holds the policy of one endpoint. It is built by Maintain from EndpointOption values.
type EndpointConfig struct {
	address string
	alias   string

	pollCommand  []byte
	pollInterval time.Duration

	disconnectLimit int

	connectTimeout      time.Duration
	retryInterval       time.Duration
	listenRetryInterval time.Duration
	idleTimeout         time.Duration
	evictionNotice      []byte

	driver any

	// explicitly given options, for the kind-dependent policy checks
	setRetryInterval   bool
	setDisconnectLimit bool
	setIdleTimeout     bool
	setListenRetry     bool
}

const (
	defaultDisconnectLimit     = 3
	defaultConnectTimeout      = 5 * time.Second
	defaultRetryInterval       = 10 * time.Second
	defaultListenRetryInterval = 10 * time.Second
)

func newEndpointConfig(kind Kind, opts []EndpointOption) (*EndpointConfig, error) {
	cfg := &EndpointConfig{
		disconnectLimit:     defaultDisconnectLimit,
		connectTimeout:      defaultConnectTimeout,
		retryInterval:       defaultRetryInterval,
		listenRetryInterval: defaultListenRetryInterval,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if err := cfg.validate(kind); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if !cfg.setIdleTimeout {
		cfg.idleTimeout = cfg.connectTimeout
	}

	return cfg, nil
}

func (cfg *EndpointConfig) validate(kind Kind) error {
	if kind.IsListener() {
		switch {
		case cfg.setRetryInterval:
			return errors.New("listener does not take a retry interval, use WithListenRetryInterval")
		case cfg.pollCommand != nil:
			return errors.New("listener does not poll")
		case cfg.setDisconnectLimit:
			return errors.New("listener does not take a disconnect limit")
		}

		return nil
	}

	switch {
	case cfg.setIdleTimeout:
		return errors.New("client does not take an idle timeout")
	case cfg.setListenRetry:
		return errors.New("client does not take a listen retry interval")
	case cfg.evictionNotice != nil:
		return errors.New("client does not take an eviction notice")
	}

	return nil
}

// Address returns the address written to the connection log.
func (cfg *EndpointConfig) Address() string { return cfg.address }

// Alias returns the alias written to the connection log.
func (cfg *EndpointConfig) Alias() string { return cfg.alias }

// PollInterval returns the keep-alive interval, 0 when the endpoint does not poll.
func (cfg *EndpointConfig) PollInterval() time.Duration { return cfg.pollInterval }

// DisconnectLimit returns the silent-failure threshold. 0 disables the detector.
func (cfg *EndpointConfig) DisconnectLimit() int { return cfg.disconnectLimit }

// ConnectTimeout returns the time allowed for one connect attempt.
func (cfg *EndpointConfig) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// RetryInterval returns the delay between reconnection attempts of a client.
func (cfg *EndpointConfig) RetryInterval() time.Duration { return cfg.retryInterval }

// ListenRetryInterval returns the delay between listen attempts of a listener.
func (cfg *EndpointConfig) ListenRetryInterval() time.Duration { return cfg.listenRetryInterval }

// IdleTimeout returns the idle time after which a listener session is evicted.
func (cfg *EndpointConfig) IdleTimeout() time.Duration { return cfg.idleTimeout }

// EndpointOption represents a functional option for configuring an endpoint at registration.
type EndpointOption interface {
	apply(*EndpointConfig) error
}

type endpointOptFunc struct {
	name      string
	applyFunc func(*EndpointConfig) error
}

func (o *endpointOptFunc) apply(cfg *EndpointConfig) error {
	if err := o.applyFunc(cfg); err != nil {
		return fmt.Errorf("%s: %w", o.name, err)
	}

	return nil
}

func newEndpointOptFunc(name string, f func(*EndpointConfig) error) *endpointOptFunc {
	return &endpointOptFunc{name: name, applyFunc: f}
}

// WithAddress sets the address recorded in the connection log and logs. It does not affect the transport.
func WithAddress(addr string) EndpointOption {
	return newEndpointOptFunc("WithAddress", func(cfg *EndpointConfig) error {
		cfg.address = addr
		return nil
	})
}

// WithAlias sets a human readable name of the endpoint.
func WithAlias(alias string) EndpointOption {
	return newEndpointOptFunc("WithAlias", func(cfg *EndpointConfig) error {
		cfg.alias = alias
		return nil
	})
}

// WithPollCommand sets the keep-alive payload and the interval it is sent at.
//
// The interval must be positive. Polling starts once the endpoint is Connected.
// Listeners reject this option.
func WithPollCommand(cmd []byte, interval time.Duration) EndpointOption {
	return newEndpointOptFunc("WithPollCommand", func(cfg *EndpointConfig) error {
		if len(cmd) == 0 {
			return errors.New("poll command must not be empty")
		}
		if interval <= 0 {
			return errors.New("poll interval must be positive")
		}

		cfg.pollCommand = append([]byte(nil), cmd...)
		cfg.pollInterval = interval

		return nil
	})
}

// WithDisconnectLimit sets how many sends may go unanswered before the endpoint is
// considered silently disconnected. 0 disables the detector.
//
// The default value is 3. Listeners reject this option.
func WithDisconnectLimit(n int) EndpointOption {
	return newEndpointOptFunc("WithDisconnectLimit", func(cfg *EndpointConfig) error {
		if n < 0 {
			return errors.New("disconnect limit must not be negative")
		}

		cfg.disconnectLimit = n
		cfg.setDisconnectLimit = true

		return nil
	})
}

// WithConnectTimeout sets the time allowed for an individual connect attempt.
//
// The default value is 5 seconds.
func WithConnectTimeout(d time.Duration) EndpointOption {
	return newEndpointOptFunc("WithConnectTimeout", func(cfg *EndpointConfig) error {
		if d <= 0 {
			return errors.New("connect timeout must be positive")
		}

		cfg.connectTimeout = d

		return nil
	})
}

// WithRetryInterval sets the delay between reconnection attempts of a client.
//
// The default value is 10 seconds. Listeners reject this option.
func WithRetryInterval(d time.Duration) EndpointOption {
	return newEndpointOptFunc("WithRetryInterval", func(cfg *EndpointConfig) error {
		if d <= 0 {
			return errors.New("retry interval must be positive")
		}

		cfg.retryInterval = d
		cfg.setRetryInterval = true

		return nil
	})
}

// WithListenRetryInterval sets the delay between listen attempts of a listener.
//
// The default value is 10 seconds. Clients reject this option.
func WithListenRetryInterval(d time.Duration) EndpointOption {
	return newEndpointOptFunc("WithListenRetryInterval", func(cfg *EndpointConfig) error {
		if d <= 0 {
			return errors.New("listen retry interval must be positive")
		}

		cfg.listenRetryInterval = d
		cfg.setListenRetry = true

		return nil
	})
}

// WithIdleTimeout sets the idle time after which a listener session is evicted.
//
// It defaults to the connect timeout. Clients reject this option.
func WithIdleTimeout(d time.Duration) EndpointOption {
	return newEndpointOptFunc("WithIdleTimeout", func(cfg *EndpointConfig) error {
		if d <= 0 {
			return errors.New("idle timeout must be positive")
		}

		cfg.idleTimeout = d
		cfg.setIdleTimeout = true

		return nil
	})
}

// WithEvictionNotice sets a payload sent to an idle session right before it is closed.
func WithEvictionNotice(p []byte) EndpointOption {
	return newEndpointOptFunc("WithEvictionNotice", func(cfg *EndpointConfig) error {
		cfg.evictionNotice = append([]byte(nil), p...)
		return nil
	})
}

// WithDriver attaches the protocol driver that owns the endpoint.
//
// If the driver implements StatusSubscriber, its reported status feeds the logical layer
// and the silent-failure detector is not installed.
func WithDriver(driver any) EndpointOption {
	return newEndpointOptFunc("WithDriver", func(cfg *EndpointConfig) error {
		cfg.driver = driver
		return nil
	})
}

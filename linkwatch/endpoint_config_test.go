package linkwatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestMaintain_PolicyErrors(t *testing.T) {
	eng, _ := newTestEngine(t)

	tests := []struct {
		name string
		t    Transport
		kind Kind
		opts []EndpointOption
	}{
		{name: "nil transport", t: nil, kind: StreamClient},
		{name: "unknown kind", t: newFakeClient(), kind: Kind(42)},
		{name: "client kind with listener transport", t: newFakeListener(), kind: StreamClient},
		{name: "listener kind with client transport", t: newFakeClient(), kind: StreamListener},
		{
			name: "listener with retry interval", t: newFakeListener(), kind: StreamListener,
			opts: []EndpointOption{WithRetryInterval(time.Second)},
		},
		{
			name: "listener with poll command", t: newFakeListener(), kind: StreamListener,
			opts: []EndpointOption{WithPollCommand([]byte("PING"), time.Second)},
		},
		{
			name: "listener with disconnect limit", t: newFakeListener(), kind: StreamListener,
			opts: []EndpointOption{WithDisconnectLimit(3)},
		},
		{
			name: "client with idle timeout", t: newFakeClient(), kind: StreamClient,
			opts: []EndpointOption{WithIdleTimeout(time.Second)},
		},
		{
			name: "client with listen retry interval", t: newFakeClient(), kind: DatagramClient,
			opts: []EndpointOption{WithListenRetryInterval(time.Second)},
		},
		{
			name: "client with eviction notice", t: newFakeClient(), kind: SerialPort,
			opts: []EndpointOption{WithEvictionNotice([]byte("BYE"))},
		},
		{
			name: "poll command without interval", t: newFakeClient(), kind: StreamClient,
			opts: []EndpointOption{WithPollCommand([]byte("PING"), 0)},
		},
		{
			name: "empty poll command", t: newFakeClient(), kind: StreamClient,
			opts: []EndpointOption{WithPollCommand(nil, time.Second)},
		},
		{
			name: "negative disconnect limit", t: newFakeClient(), kind: StreamClient,
			opts: []EndpointOption{WithDisconnectLimit(-1)},
		},
		{
			name: "zero connect timeout", t: newFakeClient(), kind: StreamClient,
			opts: []EndpointOption{WithConnectTimeout(0)},
		},
		{
			name: "negative retry interval", t: newFakeClient(), kind: StreamClient,
			opts: []EndpointOption{WithRetryInterval(-time.Second)},
		},
		{
			name: "zero idle timeout", t: newFakeListener(), kind: StreamListener,
			opts: []EndpointOption{WithIdleTimeout(0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Maintain(tt.t, tt.kind, tt.opts...)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	require.Equal(t, 0, eng.Len())
}

func TestEndpointConfig_Defaults(t *testing.T) {
	require := require.New(t)

	cfg, err := newEndpointConfig(StreamClient, nil)
	require.NoError(err)
	require.Equal(defaultDisconnectLimit, cfg.DisconnectLimit())
	require.Equal(defaultConnectTimeout, cfg.ConnectTimeout())
	require.Equal(defaultRetryInterval, cfg.RetryInterval())
	require.Zero(cfg.PollInterval())

	cfg, err = newEndpointConfig(StreamListener, []EndpointOption{WithConnectTimeout(7 * time.Second)})
	require.NoError(err)
	// the idle timeout follows the connect timeout unless given
	require.Equal(7*time.Second, cfg.IdleTimeout())
	require.Equal(defaultListenRetryInterval, cfg.ListenRetryInterval())

	cfg, err = newEndpointConfig(StreamListener, []EndpointOption{
		WithConnectTimeout(7 * time.Second),
		WithIdleTimeout(time.Minute),
		WithAddress(":5000"),
		WithAlias("gateway"),
	})
	require.NoError(err)
	require.Equal(time.Minute, cfg.IdleTimeout())
	require.Equal(":5000", cfg.Address())
	require.Equal("gateway", cfg.Alias())
}

func TestEndpointConfig_ErrorNamesOption(t *testing.T) {
	_, err := newEndpointConfig(StreamClient, []EndpointOption{WithConnectTimeout(0)})
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.ErrorContains(t, err, "WithConnectTimeout")
}

func TestKind(t *testing.T) {
	require := require.New(t)

	for _, k := range []Kind{StreamClient, DatagramClient, SerialPort, StreamListener} {
		parsed, ok := ParseKind(k.String())
		require.True(ok)
		require.Equal(k, parsed)
	}
	_, ok := ParseKind("Modem")
	require.False(ok)

	require.True(SerialPort.IsClient())
	require.False(StreamListener.IsClient())
	require.True(StreamListener.IsListener())
}

func TestEngineConfig_Options(t *testing.T) {
	require := require.New(t)

	cfg := newEngineConfig(nil)
	require.Equal(rate.Inf, cfg.reconnectLimit)
	require.Equal(20*time.Millisecond, cfg.timerRetryMin)
	require.Equal(2*time.Second, cfg.timerRetryMax)

	cfg = newEngineConfig([]EngineOption{
		nil,
		WithMaxTimers(8),
		WithReconnectRate(rate.Limit(5), 2),
		WithTimerRetryBackoff(time.Millisecond, 10*time.Millisecond),
	})
	require.Equal(8, cfg.maxTimers)
	require.Equal(rate.Limit(5), cfg.reconnectLimit)
	require.Equal(2, cfg.reconnectBurst)
	require.Equal(time.Millisecond, cfg.timerRetryMin)
	require.Equal(10*time.Millisecond, cfg.timerRetryMax)

	// a maximum below the minimum keeps the default
	cfg = newEngineConfig([]EngineOption{WithTimerRetryBackoff(time.Second, time.Millisecond)})
	require.Equal(time.Second, cfg.timerRetryMin)
	require.Equal(2*time.Second, cfg.timerRetryMax)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-linkwatch/linkwatch"
)

// single quoted YAML keeps the escape sequences for PollBytes to expand
const sampleYAML = `
logging:
  level: debug
http:
  addr: ":9090"
redis:
  enable: true
  addr: "redis:6379"
engine:
  maxTimers: 64
  reconnectRate: 5
endpoints:
  - alias: press-1
    kind: tcp
    address: 10.0.0.5:502
    pollCommand: 'PING\r\n'
    pollInterval: 1s
    disconnectLimit: 3
    retryInterval: 10s
  - alias: scale
    kind: serial
    address: /dev/ttyUSB0
    pollCommand: '\x02R\x03'
    pollInterval: 500ms
    serial:
      baudRate: 19200
      parity: E
  - alias: gateway
    kind: listener
    address: ":5000"
    idleTimeout: 10s
    evictionNotice: 'BYE\r\n'
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "linkwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	require := require.New(t)

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(err)

	require.Equal("debug", cfg.Logging.Level)
	require.Equal("json", cfg.Logging.Format)
	require.Equal(":9090", cfg.HTTP.Addr)
	require.Equal(5*time.Second, cfg.HTTP.ReadTimeout)
	require.Equal("/metrics", cfg.HTTP.MetricsPath)
	require.True(cfg.ConnLog.Enable)
	require.True(cfg.Redis.Enable)
	require.Equal("redis:6379", cfg.Redis.Addr)
	require.Equal("linkwatch:status", cfg.Redis.Channel)
	require.Equal(64, cfg.Engine.MaxTimers)
	require.InDelta(5.0, cfg.Engine.ReconnectRate, 0)

	require.Len(cfg.Endpoints, 3)

	press := cfg.Endpoints[0]
	require.Equal(time.Second, press.PollInterval)
	require.NotNil(press.DisconnectLimit)
	require.Equal(3, *press.DisconnectLimit)
	poll, err := press.PollBytes()
	require.NoError(err)
	require.Equal([]byte("PING\r\n"), poll)

	scale := cfg.Endpoints[1]
	require.Equal(19200, scale.Serial.BaudRate)
	require.Equal("E", scale.Serial.Parity)
	require.Nil(scale.DisconnectLimit)
	poll, err = scale.PollBytes()
	require.NoError(err)
	require.Equal([]byte{0x02, 'R', 0x03}, poll)

	gw := cfg.Endpoints[2]
	kind, err := gw.EndpointKind()
	require.NoError(err)
	require.Equal(linkwatch.StreamListener, kind)
	require.Equal(10*time.Second, gw.IdleTimeout)
}

func TestLoad_EnvOverride(t *testing.T) {
	require := require.New(t)

	t.Setenv("LINKWATCH_HTTP_ADDR", ":7070")
	t.Setenv("LINKWATCH_LOGGING_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(err)
	require.Equal(":7070", cfg.HTTP.Addr)
	require.Equal("warn", cfg.Logging.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing alias",
			content: `
endpoints:
  - kind: tcp
    address: 10.0.0.5:502
`,
		},
		{
			name: "duplicate alias",
			content: `
endpoints:
  - {alias: a, kind: tcp, address: 10.0.0.5:502}
  - {alias: a, kind: udp, address: 10.0.0.6:161}
`,
		},
		{
			name: "unknown kind",
			content: `
endpoints:
  - {alias: a, kind: modem, address: /dev/ttyS0}
`,
		},
		{
			name: "missing address",
			content: `
endpoints:
  - {alias: a, kind: tcp}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}
}

func TestEndpointConfig_Options(t *testing.T) {
	require := require.New(t)

	limit := 0
	ep := EndpointConfig{
		Alias:           "press-1",
		Kind:            "StreamClient",
		Address:         "10.0.0.5:502",
		PollCommand:     `PING\r\n`,
		PollInterval:    time.Second,
		DisconnectLimit: &limit,
		RetryInterval:   5 * time.Second,
	}
	kind, err := ep.EndpointKind()
	require.NoError(err)
	require.Equal(linkwatch.StreamClient, kind)

	opts, err := ep.Options()
	require.NoError(err)
	require.Len(opts, 5)

	// a listener config without client fields registers cleanly
	eng := linkwatch.NewEngine(t.Context())
	t.Cleanup(eng.Close)

	gw := EndpointConfig{Alias: "gw", Kind: "listener", Address: ":0", IdleTimeout: time.Second}
	opts, err = gw.Options()
	require.NoError(err)
	_, err = eng.Maintain(&nopListener{}, linkwatch.StreamListener, opts...)
	require.NoError(err)
}

func TestDump(t *testing.T) {
	require := require.New(t)

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(err)

	out, err := cfg.Dump()
	require.NoError(err)

	var back Config
	require.NoError(yaml.Unmarshal(out, &back))
	require.Equal(cfg.HTTP.Addr, back.HTTP.Addr)
	require.Len(back.Endpoints, 3)
	require.Contains(string(out), "pollInterval: 1s")
}

type nopListener struct{}

func (*nopListener) Send([]byte) error                                { return nil }
func (*nopListener) ReceiveHandler() linkwatch.ReceiveHandler         { return nil }
func (*nopListener) SetReceiveHandler(linkwatch.ReceiveHandler)       {}
func (*nopListener) SetStateHandler(linkwatch.StateHandler)           {}
func (*nopListener) Close() error                                     { return nil }
func (*nopListener) StartListen() error                               { return nil }
func (*nopListener) SessionHandler() linkwatch.SessionHandler         { return linkwatch.SessionHandler{} }
func (*nopListener) SetSessionHandler(linkwatch.SessionHandler)       {}
func (*nopListener) SendTo(linkwatch.SessionID, []byte) error         { return nil }
func (*nopListener) CloseSession(linkwatch.SessionID) error           { return nil }

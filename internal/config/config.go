// Package config loads the linkwatchd configuration from a YAML file and LINKWATCH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-linkwatch/linkwatch"
)

// EnvPrefix is the prefix of environment overrides, e.g. LINKWATCH_HTTP_ADDR.
const EnvPrefix = "LINKWATCH"

// LumberjackConfig is the rotation setting of a log file.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig is the process log setting.
type LoggingConfig struct {
	Level  string           `mapstructure:"level" yaml:"level"`
	Format string           `mapstructure:"format" yaml:"format"`
	File   LumberjackConfig `mapstructure:"file" yaml:"file"`
}

// HTTPConfig is the status API setting.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
	MetricsPath  string        `mapstructure:"metricsPath" yaml:"metricsPath"`
}

// ConnLogConfig is the connection log setting.
type ConnLogConfig struct {
	Enable bool             `mapstructure:"enable" yaml:"enable"`
	File   LumberjackConfig `mapstructure:"file" yaml:"file"`
}

// RedisConfig is the status mirroring setting.
type RedisConfig struct {
	Enable   bool   `mapstructure:"enable" yaml:"enable"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
	HashKey  string `mapstructure:"hashKey" yaml:"hashKey"`
}

// EngineConfig is the engine wide setting.
type EngineConfig struct {
	// MaxTimers bounds the concurrently running timer goroutines, 0 is unbounded.
	MaxTimers int `mapstructure:"maxTimers" yaml:"maxTimers"`
	// ReconnectRate bounds connect attempts per second across all endpoints, 0 is unbounded.
	ReconnectRate  float64 `mapstructure:"reconnectRate" yaml:"reconnectRate"`
	ReconnectBurst int     `mapstructure:"reconnectBurst" yaml:"reconnectBurst"`
}

// SerialConfig is the line setting of a serial endpoint.
type SerialConfig struct {
	BaudRate int    `mapstructure:"baudRate" yaml:"baudRate,omitempty"`
	DataBits int    `mapstructure:"dataBits" yaml:"dataBits,omitempty"`
	Parity   string `mapstructure:"parity" yaml:"parity,omitempty"`
	StopBits int    `mapstructure:"stopBits" yaml:"stopBits,omitempty"`
}

// EndpointConfig is one maintained endpoint. Zero values leave the engine defaults in place.
type EndpointConfig struct {
	Alias   string `mapstructure:"alias" yaml:"alias"`
	Kind    string `mapstructure:"kind" yaml:"kind"`
	Address string `mapstructure:"address" yaml:"address"`

	// PollCommand is the keep-alive payload. Go escape sequences such as \r\n and \x02 are expanded.
	PollCommand  string        `mapstructure:"pollCommand" yaml:"pollCommand,omitempty"`
	PollInterval time.Duration `mapstructure:"pollInterval" yaml:"pollInterval,omitempty"`

	DisconnectLimit     *int          `mapstructure:"disconnectLimit" yaml:"disconnectLimit,omitempty"`
	ConnectTimeout      time.Duration `mapstructure:"connectTimeout" yaml:"connectTimeout,omitempty"`
	RetryInterval       time.Duration `mapstructure:"retryInterval" yaml:"retryInterval,omitempty"`
	ListenRetryInterval time.Duration `mapstructure:"listenRetryInterval" yaml:"listenRetryInterval,omitempty"`
	IdleTimeout         time.Duration `mapstructure:"idleTimeout" yaml:"idleTimeout,omitempty"`
	EvictionNotice      string        `mapstructure:"evictionNotice" yaml:"evictionNotice,omitempty"`

	Serial SerialConfig `mapstructure:"serial" yaml:"serial,omitempty"`
}

// Config is the top level configuration.
type Config struct {
	Logging   LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	HTTP      HTTPConfig       `mapstructure:"http" yaml:"http"`
	ConnLog   ConnLogConfig    `mapstructure:"connlog" yaml:"connlog"`
	Redis     RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Engine    EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Endpoints []EndpointConfig `mapstructure:"endpoints" yaml:"endpoints"`
}

// Load reads the configuration from path and the environment.
// If path is empty, LINKWATCH_CONFIG is used, then ./linkwatch.yaml and ./configs/linkwatch.yaml;
// a missing file leaves the defaults and environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("linkwatch")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/linkwatchd.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.metricsPath", "/metrics")

	v.SetDefault("connlog.enable", true)
	v.SetDefault("connlog.file.filename", "logs/connection.log")
	v.SetDefault("connlog.file.maxSize", 50)
	v.SetDefault("connlog.file.maxBackups", 10)
	v.SetDefault("connlog.file.maxAge", 90)
	v.SetDefault("connlog.file.compress", false)

	v.SetDefault("redis.enable", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "linkwatch:status")
	v.SetDefault("redis.hashKey", "linkwatch:status")

	v.SetDefault("engine.maxTimers", 0)
	v.SetDefault("engine.reconnectRate", 0)
	v.SetDefault("engine.reconnectBurst", 1)
}

// Validate checks the endpoint list.
func (c *Config) Validate() error {
	aliases := make(map[string]struct{}, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.Alias == "" {
			return fmt.Errorf("endpoints[%d]: alias is required", i)
		}
		if _, dup := aliases[ep.Alias]; dup {
			return fmt.Errorf("endpoints[%d]: duplicate alias %q", i, ep.Alias)
		}
		aliases[ep.Alias] = struct{}{}

		if ep.Address == "" {
			return fmt.Errorf("endpoint %q: address is required", ep.Alias)
		}
		if _, err := ep.EndpointKind(); err != nil {
			return fmt.Errorf("endpoint %q: %w", ep.Alias, err)
		}
		if _, err := ep.PollBytes(); err != nil {
			return fmt.Errorf("endpoint %q: %w", ep.Alias, err)
		}
	}

	return nil
}

// Dump renders the configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}

// EndpointKind maps the kind name to a linkwatch.Kind. It accepts the short names tcp, udp,
// serial and listener as well as the linkwatch.Kind names.
func (e EndpointConfig) EndpointKind() (linkwatch.Kind, error) {
	switch strings.ToLower(e.Kind) {
	case "tcp":
		return linkwatch.StreamClient, nil
	case "udp":
		return linkwatch.DatagramClient, nil
	case "serial":
		return linkwatch.SerialPort, nil
	case "listener", "tcp-listener":
		return linkwatch.StreamListener, nil
	}

	if k, ok := linkwatch.ParseKind(e.Kind); ok {
		return k, nil
	}

	return 0, fmt.Errorf("unknown endpoint kind %q", e.Kind)
}

// PollBytes returns the poll command with escape sequences expanded, nil when not set.
func (e EndpointConfig) PollBytes() ([]byte, error) {
	return unescape(e.PollCommand)
}

func unescape(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}

	u, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil {
		return nil, fmt.Errorf("invalid escape in %q: %w", s, err)
	}

	return []byte(u), nil
}

// Options converts the endpoint setting to engine options. Only the fields that are set are
// passed, so a listener without a retry interval is not rejected.
func (e EndpointConfig) Options() ([]linkwatch.EndpointOption, error) {
	opts := []linkwatch.EndpointOption{
		linkwatch.WithAddress(e.Address),
		linkwatch.WithAlias(e.Alias),
	}

	poll, err := e.PollBytes()
	if err != nil {
		return nil, err
	}
	if poll != nil {
		opts = append(opts, linkwatch.WithPollCommand(poll, e.PollInterval))
	}
	if e.DisconnectLimit != nil {
		opts = append(opts, linkwatch.WithDisconnectLimit(*e.DisconnectLimit))
	}
	if e.ConnectTimeout != 0 {
		opts = append(opts, linkwatch.WithConnectTimeout(e.ConnectTimeout))
	}
	if e.RetryInterval != 0 {
		opts = append(opts, linkwatch.WithRetryInterval(e.RetryInterval))
	}
	if e.ListenRetryInterval != 0 {
		opts = append(opts, linkwatch.WithListenRetryInterval(e.ListenRetryInterval))
	}
	if e.IdleTimeout != 0 {
		opts = append(opts, linkwatch.WithIdleTimeout(e.IdleTimeout))
	}
	if e.EvictionNotice != "" {
		notice, err := unescape(e.EvictionNotice)
		if err != nil {
			return nil, err
		}
		opts = append(opts, linkwatch.WithEvictionNotice(notice))
	}

	return opts, nil
}

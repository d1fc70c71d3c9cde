// Command linkwatchd keeps a configured set of TCP, UDP, serial and listener endpoints alive
// and serves their connection status over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/arloliu/go-linkwatch/connlog"
	"github.com/arloliu/go-linkwatch/internal/config"
	"github.com/arloliu/go-linkwatch/internal/statusapi"
	"github.com/arloliu/go-linkwatch/internal/statuspub"
	"github.com/arloliu/go-linkwatch/linkwatch"
	"github.com/arloliu/go-linkwatch/logger"
	"github.com/arloliu/go-linkwatch/metrics"
	"github.com/arloliu/go-linkwatch/transport"
)

func main() {
	configPath := flag.String("config", "", "path of the configuration file")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *printConfig {
		out, err := cfg.Dump()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		_, _ = os.Stdout.Write(out)

		return
	}

	log := newLogger(cfg.Logging)
	logger.SetLogger(log)

	if err := run(cfg, log); err != nil {
		log.Error("linkwatchd stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) logger.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if cfg.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	ws := zapcore.AddSync(os.Stdout)
	if cfg.File.Filename != "" {
		ws = zapcore.NewMultiWriteSyncer(ws, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}))
	}

	return logger.NewZapCore(enc, ws, logger.ParseLevel(cfg.Level))
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []linkwatch.EngineOption{
		linkwatch.WithLogger(log),
		linkwatch.WithMaxTimers(cfg.Engine.MaxTimers),
	}
	if cfg.Engine.ReconnectRate > 0 {
		opts = append(opts, linkwatch.WithReconnectRate(rate.Limit(cfg.Engine.ReconnectRate), cfg.Engine.ReconnectBurst))
	}

	if cfg.ConnLog.Enable {
		cl := connlog.New(connlog.Options{
			Filename:   cfg.ConnLog.File.Filename,
			MaxSizeMB:  cfg.ConnLog.File.MaxSizeMB,
			MaxBackups: cfg.ConnLog.File.MaxBackups,
			MaxAgeDays: cfg.ConnLog.File.MaxAgeDays,
			Compress:   cfg.ConnLog.File.Compress,
		})
		defer cl.Close()
		opts = append(opts, linkwatch.WithConnLog(cl))
	}

	engine := linkwatch.NewEngine(ctx, opts...)

	// the engine lets go of the transports before they are closed
	transports := make([]linkwatch.Transport, 0, len(cfg.Endpoints))
	defer func() {
		engine.Close()
		for _, t := range transports {
			_ = t.Close()
		}
	}()

	reg := metrics.NewRegistry()
	if err := metrics.RegisterEngine(reg, engine.Metrics()); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	statusMetrics := metrics.NewStatusMetrics(reg)

	api := statusapi.New(cfg.HTTP, engine, metrics.Handler(reg))

	handlers := []linkwatch.StatusHandler{
		api.Observe,
		func(h linkwatch.Handle, state linkwatch.State) {
			if info, ok := engine.Info(h); ok {
				statusMetrics.Observe(info.Kind, state)
			}
		},
	}

	if cfg.Redis.Enable {
		rdb, err := statuspub.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()

		pub := statuspub.New(rdb, engine, cfg.Redis, log)
		defer pub.Close()
		handlers = append(handlers, pub.Observe)
	}

	engine.SetStatusHandler(fanOut(handlers...))

	for _, ep := range cfg.Endpoints {
		t, h, err := maintain(engine, ep, log)
		if err != nil {
			return fmt.Errorf("endpoint %q: %w", ep.Alias, err)
		}
		transports = append(transports, t)
		log.Info("endpoint maintained", "alias", ep.Alias, "handle", uint64(h), "kind", ep.Kind, "address", ep.Address)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("status api listening", "addr", cfg.HTTP.Addr)
		if err := api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = api.Shutdown(shutdownCtx)

	return runErr
}

// maintain builds the transport of ep and registers it with the engine.
func maintain(engine *linkwatch.Engine, ep config.EndpointConfig, log logger.Logger) (linkwatch.Transport, linkwatch.Handle, error) {
	kind, err := ep.EndpointKind()
	if err != nil {
		return nil, 0, err
	}

	opts, err := ep.Options()
	if err != nil {
		return nil, 0, err
	}

	t := newTransport(kind, ep, log)

	h, err := engine.Maintain(t, kind, opts...)
	if err != nil {
		_ = t.Close()
		return nil, 0, err
	}

	return t, h, nil
}

func newTransport(kind linkwatch.Kind, ep config.EndpointConfig, log logger.Logger) linkwatch.Transport {
	tlog := transport.WithLogger(log.With("alias", ep.Alias))

	switch kind {
	case linkwatch.DatagramClient:
		return transport.NewUDPClient(ep.Address, tlog)
	case linkwatch.SerialPort:
		return transport.NewSerialPort(ep.Address, transport.SerialConfig{
			BaudRate: ep.Serial.BaudRate,
			DataBits: ep.Serial.DataBits,
			Parity:   ep.Serial.Parity,
			StopBits: ep.Serial.StopBits,
		}, tlog)
	case linkwatch.StreamListener:
		return transport.NewTCPListener(ep.Address, tlog)
	default:
		return transport.NewTCPClient(ep.Address, tlog)
	}
}

func fanOut(handlers ...linkwatch.StatusHandler) linkwatch.StatusHandler {
	return func(h linkwatch.Handle, state linkwatch.State) {
		for _, fn := range handlers {
			fn(h, state)
		}
	}
}

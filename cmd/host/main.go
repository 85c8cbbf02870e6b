package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/suredesigns/alier-bridge/internal/boot"
	"github.com/suredesigns/alier-bridge/internal/config"
	"github.com/suredesigns/alier-bridge/internal/dispatch"
	"github.com/suredesigns/alier-bridge/internal/handle"
	"github.com/suredesigns/alier-bridge/internal/logging"
	"github.com/suredesigns/alier-bridge/internal/monitoring"
	"github.com/suredesigns/alier-bridge/internal/phase"
	"github.com/suredesigns/alier-bridge/internal/script"
	"github.com/suredesigns/alier-bridge/internal/transport/loopback"
	"github.com/suredesigns/alier-bridge/internal/transport/ws"
)

func main() {
	scriptPath := flag.String("script", "", "Path of a JavaScript entry script, loaded through the transport")
	entryName := flag.String("entry", "main", "Name of the entry function inside the script")
	flag.Parse()

	cfg := config.LoadOrDefault()

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = monitoring.NewMetrics(reg)
		if cfg.Metrics.Addr != "" {
			go serveMetrics(cfg.Metrics.Addr, reg, logger.Logger)
		}
	}

	registry := handle.New()
	if metrics != nil {
		registry.Subscribe(metrics)
	}

	coordinator := phase.New(phase.WithLogger(logger.Logger))

	// Notifications from the native side feed the phase coordinator.
	notify := func(topic string) {
		if metrics != nil {
			metrics.RecordSignal(topic)
		}
		coordinator.Signal(topic)
	}

	var transport dispatch.Transport
	var host *loopback.Host
	switch cfg.Transport.Mode {
	case "ws":
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		conn, err := ws.Dial(ctx, cfg.Transport.URL, nil, notify, logger.Logger)
		if err != nil {
			logger.Fatal("Failed to connect to native host", zap.Error(err))
		}
		defer conn.Close()
		transport = conn
	default:
		host = demoHost(logger.Logger)
		transport = host
	}

	opts := []dispatch.Option{dispatch.WithLogger(logger.Logger)}
	if metrics != nil {
		opts = append(opts, dispatch.WithRecorder(metrics))
	}
	dispatcher := dispatch.New(transport, registry, opts...)

	if host != nil {
		host.Bind(dispatcher, notify)
		if *scriptPath != "" {
			// The loopback host serves text resources from memory; seed it
			// from the local filesystem.
			src, err := os.ReadFile(*scriptPath)
			if err != nil {
				logger.Fatal("Failed to read entry script", zap.Error(err))
			}
			host.AddScript(*scriptPath, string(src))
		}
	} else if conn, ok := transport.(*ws.Conn); ok {
		conn.Bind(dispatcher)
	}

	sequencer, err := boot.New(boot.Config{
		Dispatcher:  dispatcher,
		Coordinator: coordinator,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("Failed to create sequencer", zap.Error(err))
	}

	entry, err := buildEntry(cfg, dispatcher, transport, logger, *scriptPath, *entryName)
	if err != nil {
		logger.Fatal("Failed to prepare entry point", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sequencer.Run(ctx, entry); err != nil {
		logger.Fatal("Startup failed", zap.Error(err))
	}
	logger.Info("Startup complete",
		zap.String("transport", cfg.Transport.Mode),
		zap.Int("handles", registry.Len()))

	// Keep translating system events until interrupted.
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return
		case msg := <-sequencer.Events():
			logger.Info("System event",
				zap.String("topic", msg.Topic),
				zap.Any("payload", msg.Payload))
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info("Metrics endpoint listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("Metrics endpoint stopped", zap.Error(err))
	}
}

// buildEntry resolves the startup entry point: a script loaded through the
// transport when -script is given, otherwise a built-in no-op entry.
func buildEntry(cfg *config.Config, d *dispatch.Dispatcher, t dispatch.Transport, logger *logging.Logger, path, name string) (any, error) {
	if path == "" {
		return func(s *boot.Sequencer) error {
			logger.Info("No entry script configured, idling")
			return nil
		}, nil
	}

	src, err := t.LoadText(path)
	if err != nil {
		return nil, err
	}

	rt, err := script.New(script.Config{
		MaxCallStack:  cfg.Script.MaxCallStack,
		EnableConsole: cfg.Script.EnableConsole,
	}, d, logger.Logger)
	if err != nil {
		return nil, err
	}

	if _, err := rt.Run(context.Background(), src); err != nil {
		return nil, err
	}
	entry, err := rt.Entry(name)
	if err != nil {
		return nil, err
	}
	return func(s *boot.Sequencer) (any, error) {
		return entry()
	}, nil
}

// demoHost builds the in-process native host used in loopback mode.
func demoHost(log *zap.Logger) *loopback.Host {
	host := loopback.NewHost(log)
	host.SetEnv("platform", "loopback")
	host.SetEnv("hostVersion", "1.0.0")

	host.Register(boot.FuncGetLogSettings, false, func(args []any) (any, error) {
		return map[string]any{"level": "info"}, nil
	})
	host.Register(boot.FuncGetStartupParameters, false, func(args []any) (any, error) {
		return map[string]any{"locale": "en-US"}, nil
	})
	host.Register(boot.FuncSetSystemListener, false, func(args []any) (any, error) {
		return nil, nil
	})
	host.Register("echo", true, func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		return args[0], nil
	})

	return host
}

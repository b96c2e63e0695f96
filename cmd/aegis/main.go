package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/config"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/adapters/engine"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/adapters/storage"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/session"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/transport"
)

const clientVersion = "0.3.0"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	url := flag.String("url", "", "engine WebSocket URL (overrides config)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	desktop := flag.Bool("desktop", false, "open the desktop window instead of the console prompt")
	noCache := flag.Bool("no-cache", false, "do not read or write the local state cache")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *url != "" {
		cfg.Session.URL = *url
	}
	setupLogger(cfg.Log)

	slog.Info("aegis client starting",
		"config", *configPath,
		"url", cfg.Session.URL,
		"desktop", *desktop,
		"cache", cfg.Storage.DSN,
	)

	deps := session.Deps{
		Dialer: engine.NewDialer(cfg.Session.HandshakeTimeout()),
		Logger: slog.Default(),
	}
	if cfg.Storage.CacheEnabled() && !*noCache {
		cache, err := storage.NewSQLiteCache(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open state cache", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer cache.Close()
		deps.Cache = cache
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *desktop {
		err = runDesktop(ctx, cfg, deps)
	} else {
		err = runConsole(ctx, cfg, deps)
	}
	if err != nil {
		slog.Error("aegis exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("aegis stopped cleanly")
}

// sessionConfig traduce la configuración de archivo a la de la sesión.
func sessionConfig(cfg *config.Config) session.Config {
	tc := transport.DefaultConfig()
	tc.URL = cfg.Session.URL
	tc.ReconnectInterval = cfg.Session.ReconnectInterval()
	tc.MaxReconnectInterval = cfg.Session.MaxReconnectInterval()
	tc.ReconnectDecay = cfg.Session.ReconnectDecay
	tc.MaxReconnectAttempts = cfg.Session.MaxReconnectAttempts
	tc.HeartbeatInterval = cfg.Session.HeartbeatInterval()
	tc.HeartbeatTimeout = cfg.Session.HeartbeatTimeout()
	tc.ClientName = "aegis-cli"
	tc.ClientVersion = clientVersion

	return session.Config{
		Transport:         tc,
		RequestTimeout:    cfg.Session.RequestTimeout(),
		AlertHistoryLimit: cfg.Alerts.HistoryLimit,
		AsyncAlertTimeout: cfg.Alerts.AsyncTimeout(),
		TradeLogLimit:     cfg.Session.TradeLogLimit,
	}
}

// startSession crea la sesión, la instala en holder y arranca su loop.
// done se cierra cuando el loop termina.
func startSession(ctx context.Context, holder *session.Holder, cfg session.Config, deps session.Deps) (*session.Session, <-chan struct{}, error) {
	s, err := session.New(cfg, deps)
	if err != nil {
		return nil, nil, err
	}
	if err := holder.Replace(s); err != nil {
		slog.Warn("previous session closed with error", "err", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.Run(ctx); err != nil {
			slog.Error("session loop failed", "err", err)
		}
	}()
	if err := s.Connect(ctx); err != nil {
		slog.Warn("initial connect failed", "err", err)
	}
	return s, done, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

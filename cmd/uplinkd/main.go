package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sheerbytes/uplink/internal/config"
	"github.com/sheerbytes/uplink/internal/logging"
	"github.com/sheerbytes/uplink/internal/notify"
	"github.com/sheerbytes/uplink/internal/quictransport"
	"github.com/sheerbytes/uplink/internal/server"
	"github.com/sheerbytes/uplink/internal/termio"
	"github.com/sheerbytes/uplink/internal/transfer"
	"github.com/sheerbytes/uplink/internal/transport"
	"github.com/sheerbytes/uplink/internal/upload"
	"github.com/sheerbytes/uplink/internal/wsbridge"
)

const serverVersion = "v0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	defer termio.FlushAll()
	if hasHelpFlag(os.Args[1:]) {
		printServerUsage()
		return 0
	}
	if hasVersionFlag(os.Args[1:]) {
		fmt.Fprintln(termio.Stdout(), serverVersion)
		return 0
	}
	cfg, err := config.ParseServerConfig()
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "uplinkd: %v\n", err)
		return 2
	}
	logger := logging.NewWithWriter(os.Stdout, "uplinkd", cfg.LogLevel, cfg.LogFormat)

	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		logger.Error("cannot create root directory", "root", cfg.Root, "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier, closeNotifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		logger.Error("completion feed unavailable", "error", err)
		return 1
	}
	defer closeNotifier()

	handler := server.NewHandler(
		upload.NewCoordinator(cfg.Root),
		transfer.NewReceiver(cfg.ChunkSize, cfg.IdleTimeout),
		logger,
	)
	handler.HeaderTimeout = cfg.HeaderTimeout
	handler.Notifier = notifier
	srv := server.New(handler, server.Options{
		SocketBuf:     cfg.SocketBuf,
		MaxConns:      cfg.MaxConns,
		AcceptsPerMin: cfg.AcceptsPerMin,
		AcceptBurst:   cfg.AcceptBurst,
	})

	listeners, err := openListeners(ctx, cfg, logger)
	if err != nil {
		logger.Error("listen failed", "error", err)
		return 1
	}

	errc := make(chan error, len(listeners))
	for _, ln := range listeners {
		go func(ln net.Listener) {
			errc <- srv.Serve(ctx, ln)
		}(ln)
	}
	logger.Info("server started",
		"addr", cfg.Addr,
		"root", cfg.Root,
		"chunk_size", transport.FormatSize(int64(cfg.ChunkSize)),
		"socket_buf", transport.FormatSize(int64(cfg.SocketBuf)),
		"idle_timeout", cfg.IdleTimeout)

	code := 0
	for range listeners {
		if err := <-errc; err != nil {
			logger.Error("listener stopped", "error", err)
			code = 1
			stop()
		}
	}
	logger.Info("shutting down", "active", srv.Active())
	srv.Wait()
	return code
}

func openListeners(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) ([]net.Listener, error) {
	var out []net.Listener
	closeAll := func() {
		for _, ln := range out {
			_ = ln.Close()
		}
	}

	tcp, err := transport.ListenTCP(ctx, cfg.Addr, cfg.SocketBuf)
	if err != nil {
		return nil, fmt.Errorf("tcp %s: %w", cfg.Addr, err)
	}
	out = append(out, tcp)

	if cfg.QUICAddr != "" {
		ql, err := quictransport.Listen(cfg.QUICAddr, cfg.SocketBuf, logger)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("quic %s: %w", cfg.QUICAddr, err)
		}
		out = append(out, ql)
	}
	if cfg.WSAddr != "" {
		wl, err := wsbridge.Listen(cfg.WSAddr, logger)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("websocket %s: %w", cfg.WSAddr, err)
		}
		out = append(out, wl)
	}
	return out, nil
}

func buildNotifier(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (notify.Notifier, func(), error) {
	feed := notify.Multi{notify.LogNotifier{Logger: logger}}
	if cfg.RedisAddr == "" {
		return feed, func() {}, nil
	}
	rn, err := notify.NewRedis(ctx, notify.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Key:      cfg.RedisKey,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("completion feed enabled", "redis_addr", cfg.RedisAddr, "key", rn.Key())
	return append(feed, rn), func() { _ = rn.Close() }, nil
}

func printServerUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: uplinkd [-config FILE] [-addr :8888] [-root DIR] [flags]")
	fmt.Fprintln(w, "  -config FILE             YAML config file (env UPLINK_CONFIG)")
	fmt.Fprintln(w, "  -addr ADDR               TCP listen address (default :8888)")
	fmt.Fprintln(w, "  -root DIR                directory receiving uploads (default received)")
	fmt.Fprintln(w, "  -log-level LEVEL         debug, info, warn, error (default info)")
	fmt.Fprintln(w, "  -log-format FORMAT       text or json (default text)")
	fmt.Fprintln(w, "  -chunk-size N            receive chunk size in bytes (default 4194304)")
	fmt.Fprintln(w, "  -socket-buf N            socket buffer size in bytes (default 8388608)")
	fmt.Fprintln(w, "  -idle-timeout DURATION   max silence mid-body (default 60s)")
	fmt.Fprintln(w, "  -header-timeout DURATION max time to receive the header (default 30s)")
	fmt.Fprintln(w, "  -max-conns N             max concurrent connections (default 1000, 0 unlimited)")
	fmt.Fprintln(w, "  -accepts-per-min N       max new connections per minute per IP (default 0, unlimited)")
	fmt.Fprintln(w, "  -accept-burst N          burst of new connections per IP (default 10)")
	fmt.Fprintln(w, "  -quic-addr ADDR          also accept uploads over QUIC")
	fmt.Fprintln(w, "  -ws-addr ADDR            also accept uploads over WebSocket at /upload")
	fmt.Fprintln(w, "  -redis-addr ADDR         push completion events to Redis")
	fmt.Fprintln(w, "  -redis-key KEY           Redis list for completion events (default uplink:completed)")
	fmt.Fprintln(w, "every flag can also be set as UPLINK_<NAME> in the environment or a .env file")
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

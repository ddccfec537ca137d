package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sheerbytes/uplink/internal/client"
	"github.com/sheerbytes/uplink/internal/config"
	"github.com/sheerbytes/uplink/internal/logging"
	"github.com/sheerbytes/uplink/internal/progress"
	"github.com/sheerbytes/uplink/internal/termio"
)

const (
	version          = "v0.1.0"
	defaultSocketBuf = 8 * 1024 * 1024
)

func main() {
	os.Exit(run())
}

func run() int {
	defer termio.FlushAll()
	args := os.Args[1:]
	if hasHelpFlag(args) {
		printUsage()
		return 0
	}
	if hasVersionFlag(args) {
		fmt.Fprintln(termio.Stdout(), version)
		return 0
	}
	cfg, err := config.ParseClientConfig()
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "uplink: %v\n", err)
		return 2
	}
	if len(cfg.Paths) == 0 {
		printUsage()
		return 2
	}
	logger := logging.NewWithWriter(termio.Stderr(), "uplink", cfg.LogLevel, "text")

	dial, err := client.NewDialer(cfg.Transport, cfg.Server, defaultSocketBuf, cfg.DialTimeout, logger)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "uplink: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u := &client.Uploader{
		Dial:       dial,
		ClientName: cfg.ClientName,
		ChunkSize:  cfg.ChunkSize,
		IOTimeout:  cfg.IOTimeout,
		Retry: client.RetryPolicy{
			MaxAttempts: cfg.Retries,
			BaseDelay:   cfg.RetryDelay,
			MaxDelay:    cfg.MaxRetryDelay,
		},
		Logger:   logger,
		Progress: func(s progress.Stats) {
			fmt.Fprintf(termio.Stderr(), "  %s\n", progress.FormatLine(s))
		},
	}

	failed := 0
	for _, path := range cfg.Paths {
		res, err := u.Upload(ctx, path, cfg.UploadID)
		if err != nil {
			failed++
			fmt.Fprintf(termio.Stderr(), "FAIL %s: %v\n", path, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fmt.Fprintf(termio.Stdout(), "OK   %s id=%s size=%d resumed_at=%d sent=%d attempts=%d %s\n",
			path, res.UploadID, res.Size, res.Offset, res.Sent, res.Attempts, rate(res.Sent, res.Elapsed))
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func rate(sent int64, elapsed time.Duration) string {
	if sent == 0 || elapsed <= 0 {
		return "already complete"
	}
	return progress.FormatRate(float64(sent) / elapsed.Seconds())
}

func printUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: uplink -server ADDR -client NAME [flags] FILE...")
	fmt.Fprintln(w, "  -server ADDR             server host:port, or ws:// URL with -transport ws (default 127.0.0.1:8888)")
	fmt.Fprintln(w, "  -client NAME             station name (default hostname)")
	fmt.Fprintln(w, "  -transport KIND          tcp, quic or ws (default tcp)")
	fmt.Fprintln(w, "  -upload-id ID            fixed upload id, single file only (default derived from the file)")
	fmt.Fprintln(w, "  -retries N               attempts per file (default 10)")
	fmt.Fprintln(w, "  -retry-delay DURATION    first backoff (default 1s)")
	fmt.Fprintln(w, "  -max-retry-delay DURATION backoff ceiling (default 30s)")
	fmt.Fprintln(w, "  -chunk-size N            send chunk size in bytes (default 1048576)")
	fmt.Fprintln(w, "  -dial-timeout DURATION   connect timeout (default 10s)")
	fmt.Fprintln(w, "  -io-timeout DURATION     max silence from the server (default 60s)")
	fmt.Fprintln(w, "  -config FILE             YAML config file (env UPLINK_CONFIG)")
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

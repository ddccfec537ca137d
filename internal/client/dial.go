package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/sheerbytes/uplink/internal/quictransport"
	"github.com/sheerbytes/uplink/internal/transport"
	"github.com/sheerbytes/uplink/internal/wsbridge"
)

// TCPDialer connects over TCP with tuned socket buffers.
func TCPDialer(addr string, socketBuf int, timeout time.Duration) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		ctx, cancel := withTimeout(ctx, timeout)
		defer cancel()
		return transport.DialTCP(ctx, addr, socketBuf)
	}
}

// QUICDialer opens a fresh QUIC connection and stream per attempt.
func QUICDialer(addr string, window int, timeout time.Duration, logger *slog.Logger) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		ctx, cancel := withTimeout(ctx, timeout)
		defer cancel()
		return quictransport.Dial(ctx, addr, window, logger)
	}
}

// WSDialer upgrades to the server's WebSocket upload endpoint. A bare
// host:port is expanded to ws://host:port/upload.
func WSDialer(server string, timeout time.Duration) Dialer {
	url := server
	if !strings.Contains(url, "://") {
		url = "ws://" + url + wsbridge.UploadPath
	}
	return func(ctx context.Context) (net.Conn, error) {
		ctx, cancel := withTimeout(ctx, timeout)
		defer cancel()
		return wsbridge.Dial(ctx, url)
	}
}

// NewDialer picks a dialer by transport name.
func NewDialer(kind, server string, socketBuf int, timeout time.Duration, logger *slog.Logger) (Dialer, error) {
	switch kind {
	case "", "tcp":
		return TCPDialer(server, socketBuf, timeout), nil
	case "quic":
		return QUICDialer(server, socketBuf, timeout, logger), nil
	case "ws":
		return WSDialer(server, timeout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

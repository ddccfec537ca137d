package transport

import (
	"time"

	"github.com/quic-go/quic-go"
)

const (
	minQuicStreamWindow = 1 * 1024 * 1024
	maxQuicStreamWindow = 256 * 1024 * 1024

	// An upload occupies one bidirectional stream.
	uploadMaxStreams = 4

	quicIdleTimeout = 60 * time.Second
	quicKeepAlive   = 15 * time.Second
)

// QuicTuneResult reports the flow-control windows placed in a quic.Config.
type QuicTuneResult struct {
	ConnWin   int
	StreamWin int
	Status    string
}

// BuildQuicConfig returns a copy of base with receive windows sized for a
// single upload stream of about window bytes in flight. base is never mutated.
func BuildQuicConfig(base *quic.Config, window int) (*quic.Config, QuicTuneResult) {
	cfg := &quic.Config{
		MaxIdleTimeout:  quicIdleTimeout,
		KeepAlivePeriod: quicKeepAlive,
	}
	if base != nil {
		copyCfg := *base
		cfg = &copyCfg
	}

	stream := clampQuicStreamWindow(window)
	conn := stream * 2
	cfg.InitialStreamReceiveWindow = uint64(stream)
	cfg.MaxStreamReceiveWindow = uint64(stream)
	cfg.InitialConnectionReceiveWindow = uint64(stream)
	cfg.MaxConnectionReceiveWindow = uint64(conn)
	cfg.MaxIncomingStreams = uploadMaxStreams
	cfg.MaxIncomingUniStreams = -1

	return cfg, QuicTuneResult{ConnWin: conn, StreamWin: stream, Status: StatusOK}
}

func clampQuicStreamWindow(n int) int {
	if n < minQuicStreamWindow {
		return minQuicStreamWindow
	}
	if n > maxQuicStreamWindow {
		return maxQuicStreamWindow
	}
	return n
}

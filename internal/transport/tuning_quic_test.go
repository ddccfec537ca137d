package transport

import (
	"testing"
	"time"

	"github.com/quic-go/quic-go"
)

func TestBuildQuicConfigClampsAndCopies(t *testing.T) {
	base := &quic.Config{
		KeepAlivePeriod: 30 * time.Second,
	}
	cfg, res := BuildQuicConfig(base, maxQuicStreamWindow+1)
	if res.StreamWin != maxQuicStreamWindow {
		t.Fatalf("expected stream window clamp, got %d", res.StreamWin)
	}
	if res.ConnWin != 2*maxQuicStreamWindow {
		t.Fatalf("expected conn window twice the stream window, got %d", res.ConnWin)
	}
	if cfg.MaxStreamReceiveWindow != uint64(maxQuicStreamWindow) {
		t.Fatalf("unexpected stream window in config")
	}
	if cfg.MaxIncomingStreams != uploadMaxStreams {
		t.Fatalf("unexpected max streams in config")
	}
	if cfg.KeepAlivePeriod != base.KeepAlivePeriod {
		t.Fatalf("expected keepalive preserved from base")
	}
	if base.InitialConnectionReceiveWindow != 0 {
		t.Fatalf("expected base config untouched")
	}
}

func TestBuildQuicConfigDefaults(t *testing.T) {
	cfg, res := BuildQuicConfig(nil, 0)
	if res.StreamWin != minQuicStreamWindow {
		t.Fatalf("expected clamp to min, got %d", res.StreamWin)
	}
	if cfg.MaxIdleTimeout != quicIdleTimeout || cfg.KeepAlivePeriod != quicKeepAlive {
		t.Fatalf("expected idle and keepalive defaults, got %s/%s", cfg.MaxIdleTimeout, cfg.KeepAlivePeriod)
	}
}

package quictransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/sheerbytes/uplink/internal/transport"
)

const streamAcceptTimeout = 30 * time.Second

// Listener accepts QUIC connections and yields the first bidirectional
// stream of each as a net.Conn, so the upload handler can serve QUIC and
// TCP clients alike.
type Listener struct {
	ql     *quic.Listener
	udp    *net.UDPConn
	conns  chan net.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	once   sync.Once
}

var _ net.Listener = (*Listener)(nil)

// Listen binds addr over UDP and starts accepting QUIC connections. window
// sizes the per-stream receive window and the UDP socket buffers.
func Listen(addr string, window int, logger *slog.Logger) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	udp, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	tune := transport.TuneUDP(udp, window)
	if tune.Status != transport.StatusOK {
		logger.Warn("udp buffer tuning", "status", tune.Status, "error", tune.Err)
	}

	tlsConfig, err := ServerConfig()
	if err != nil {
		udp.Close()
		return nil, err
	}
	qcfg, qres := transport.BuildQuicConfig(DefaultServerQUICConfig(), window)
	ql, err := quic.Listen(udp, tlsConfig, qcfg)
	if err != nil {
		logger.Error("QUIC listen failed", "error", err, "local_addr", udp.LocalAddr())
		udp.Close()
		return nil, err
	}
	logger.Info("QUIC listener created",
		"local_addr", ql.Addr(),
		"stream_window", transport.FormatSize(int64(qres.StreamWin)),
		"udp_buf", transport.FormatSize(int64(tune.Requested)))

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		ql:     ql,
		udp:    udp,
		conns:  make(chan net.Conn),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ql.Accept(l.ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, quic.ErrServerClosed) {
				l.logger.Warn("QUIC accept failed", "error", err)
			}
			l.cancel()
			return
		}
		go l.acceptStream(conn)
	}
}

func (l *Listener) acceptStream(conn *quic.Conn) {
	ctx, cancel := context.WithTimeout(l.ctx, streamAcceptTimeout)
	defer cancel()
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		l.logger.Debug("QUIC connection opened no stream", "remote_addr", conn.RemoteAddr(), "error", err)
		_ = conn.CloseWithError(1, "no stream")
		return
	}
	sc := newStreamConn(conn, stream, closeLinger)
	select {
	case l.conns <- sc:
	case <-l.ctx.Done():
		_ = conn.CloseWithError(0, "shutting down")
	}
}

// Accept returns the next upload stream.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	}
}

// Close stops accepting and releases the UDP socket.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.ql.Close()
		if uerr := l.udp.Close(); err == nil {
			err = uerr
		}
	})
	return err
}

// Addr reports the bound UDP address.
func (l *Listener) Addr() net.Addr { return l.ql.Addr() }

// Dial opens a QUIC connection to addr and one bidirectional stream on it.
func Dial(ctx context.Context, addr string, window int, logger *slog.Logger) (net.Conn, error) {
	qcfg, _ := transport.BuildQuicConfig(DefaultClientQUICConfig(), window)
	conn, err := logDial(ctx, addr, qcfg, logger)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "open stream")
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return newStreamConn(conn, stream, 0), nil
}

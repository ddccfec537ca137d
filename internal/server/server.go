// Package server accepts upload connections and runs the resumable upload
// exchange on each of them.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sheerbytes/uplink/internal/transport"
)

// Options tune the accept loop. Zero values disable the corresponding limit.
type Options struct {
	SocketBuf     int
	MaxConns      int
	AcceptsPerMin int
	AcceptBurst   int
}

// Server feeds connections from any number of listeners to one Handler.
type Server struct {
	handler   *Handler
	logger    *slog.Logger
	socketBuf int
	conns     *connLimiter
	perIP     *ipLimiter
	wg        sync.WaitGroup
}

// New returns a server dispatching to h.
func New(h *Handler, opts Options) *Server {
	return &Server{
		handler:   h,
		logger:    h.Logger,
		socketBuf: opts.SocketBuf,
		conns:     newConnLimiter(opts.MaxConns),
		perIP:     newIPLimiter(opts.AcceptsPerMin, opts.AcceptBurst),
	}
}

// Serve accepts on ln until ctx is cancelled or ln fails, running each
// connection in its own goroutine. ln is closed on return. Handlers still
// running are tracked by Wait.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer ln.Close()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.logger.Warn("accept failed, retrying", "error", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		ip := remoteIP(conn)
		if !s.perIP.Allow(ip) {
			s.logger.Warn("connection refused: rate limit", "peer", ip)
			_ = conn.Close()
			continue
		}
		if !s.conns.Acquire() {
			s.logger.Warn("connection refused: too many connections", "peer", ip, "in_use", s.conns.InUse())
			_ = conn.Close()
			continue
		}
		if res := transport.TuneTCP(conn, s.socketBuf); res.Status == transport.StatusDenied {
			s.logger.Debug("socket tuning denied", "peer", ip, "error", res.Err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.conns.Release()
			s.handler.Serve(ctx, conn)
		}()
	}
}

// Wait blocks until every accepted connection has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Active reports connections currently being served.
func (s *Server) Active() int {
	return s.conns.InUse()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

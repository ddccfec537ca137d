package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// UploadPath is where clients upgrade to the upload stream.
const UploadPath = "/upload"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // uploads come from stations, not browsers
	},
}

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
	ReadBufferSize:   4 * 1024,
	WriteBufferSize:  64 * 1024,
}

// Listener serves /upload and /health over HTTP and hands each upgraded
// upload connection to Accept as a net.Conn.
type Listener struct {
	ln     net.Listener
	srv    *http.Server
	conns  chan net.Conn
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

var _ net.Listener = (*Listener)(nil)

// Listen binds addr and starts the HTTP server.
func Listen(addr string, logger *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{
		ln:     ln,
		conns:  make(chan net.Conn),
		done:   make(chan struct{}),
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc(UploadPath, l.handleUpload)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("websocket server failed", "error", err)
		}
	}()
	logger.Info("websocket listener created", "local_addr", ln.Addr(), "path", UploadPath)
	return l, nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (l *Listener) handleUpload(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	conn := NewConn(ws)
	select {
	case l.conns <- conn:
	case <-l.done:
		_ = conn.Close()
	}
}

// Accept returns the next upgraded upload connection.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close stops the HTTP server. Connections already accepted stay open.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

// Addr reports the bound TCP address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Dial upgrades to the upload stream at wsURL, e.g. ws://host:8889/upload.
func Dial(ctx context.Context, wsURL string) (net.Conn, error) {
	ws, resp, err := dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, err
	}
	return NewConn(ws), nil
}

package transport

import (
	"context"
	"net"
	"strings"
	"time"
)

const (
	minTCPBuffer = 64 * 1024
	maxTCPBuffer = 64 * 1024 * 1024
)

// TcpTuneResult reports what TuneTCP asked for and what failed.
type TcpTuneResult struct {
	NoDelay   bool
	Requested int
	Status    string
	Err       string
}

// TuneTCP disables Nagle and sizes the kernel buffers of conn. Connections
// that are not TCP are left alone and reported as StatusNA.
func TuneTCP(conn net.Conn, buf int) TcpTuneResult {
	req := clampTCPBuffer(buf)
	result := TcpTuneResult{Requested: req, Status: StatusOK}
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		result.Status = StatusNA
		result.Err = "not a TCP connection"
		return result
	}

	var errs []string
	if err := tcp.SetNoDelay(true); err != nil {
		errs = append(errs, "nodelay: "+err.Error())
	} else {
		result.NoDelay = true
	}
	if err := tcp.SetReadBuffer(req); err != nil {
		errs = append(errs, "read: "+err.Error())
	}
	if err := tcp.SetWriteBuffer(req); err != nil {
		errs = append(errs, "write: "+err.Error())
	}
	if len(errs) > 0 {
		result.Status = StatusDenied
		result.Err = strings.Join(errs, "; ")
	}
	return result
}

// ListenTCP opens a TCP listener whose socket buffers are sized before
// listen(2), so accepted connections negotiate a matching window scale.
func ListenTCP(ctx context.Context, addr string, buf int) (net.Listener, error) {
	lc := net.ListenConfig{
		KeepAlive: 30 * time.Second,
		Control:   socketBufferControl(clampTCPBuffer(buf)),
	}
	return lc.Listen(ctx, "tcp", addr)
}

// DialTCP connects to addr with the same socket sizing as the server.
func DialTCP(ctx context.Context, addr string, buf int) (net.Conn, error) {
	d := net.Dialer{
		KeepAlive: 30 * time.Second,
		Control:   socketBufferControl(clampTCPBuffer(buf)),
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	TuneTCP(conn, buf)
	return conn, nil
}

func clampTCPBuffer(n int) int {
	if n < minTCPBuffer {
		return minTCPBuffer
	}
	if n > maxTCPBuffer {
		return maxTCPBuffer
	}
	return n
}

package transport

import (
	"net"
	"strings"
)

const (
	minUDPBuffer = 256 * 1024
	maxUDPBuffer = 64 * 1024 * 1024
)

// UdpTuneResult reports the buffers requested for a QUIC packet socket.
type UdpTuneResult struct {
	Requested int
	Status    string
	Err       string
}

// TuneUDP sizes the kernel buffers of the socket carrying QUIC traffic.
func TuneUDP(conn *net.UDPConn, buf int) UdpTuneResult {
	req := clampUDPBuffer(buf)
	result := UdpTuneResult{Requested: req, Status: StatusOK}
	if conn == nil {
		result.Status = StatusNA
		result.Err = "no UDP socket"
		return result
	}

	var errs []string
	if err := conn.SetReadBuffer(req); err != nil {
		errs = append(errs, "read: "+err.Error())
	}
	if err := conn.SetWriteBuffer(req); err != nil {
		errs = append(errs, "write: "+err.Error())
	}
	if len(errs) > 0 {
		result.Status = StatusDenied
		result.Err = strings.Join(errs, "; ")
	}
	return result
}

func clampUDPBuffer(n int) int {
	if n < minUDPBuffer {
		return minUDPBuffer
	}
	if n > maxUDPBuffer {
		return maxUDPBuffer
	}
	return n
}

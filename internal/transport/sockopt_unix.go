//go:build unix

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func socketBufferControl(buf int) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			// Best effort; the kernel may cap at rmem_max/wmem_max.
			_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, buf)
			_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, buf)
			if network == "tcp" || network == "tcp4" || network == "tcp6" {
				sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			}
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}

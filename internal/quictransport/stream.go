package quictransport

import (
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// closeLinger bounds how long the server waits for the client to tear the
// connection down after the final ack, so the ack is not lost to an early
// CONNECTION_CLOSE.
const closeLinger = 2 * time.Second

// StreamConn presents one bidirectional QUIC stream as a net.Conn. Closing
// it closes the whole QUIC connection.
type StreamConn struct {
	conn   *quic.Conn
	stream *quic.Stream
	linger time.Duration
	once   sync.Once
}

var _ net.Conn = (*StreamConn)(nil)

func newStreamConn(conn *quic.Conn, stream *quic.Stream, linger time.Duration) *StreamConn {
	return &StreamConn{conn: conn, stream: stream, linger: linger}
}

func (c *StreamConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *StreamConn) Write(p []byte) (int, error) { return c.stream.Write(p) }

func (c *StreamConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *StreamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *StreamConn) SetDeadline(t time.Time) error      { return c.stream.SetDeadline(t) }
func (c *StreamConn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *StreamConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }

// Close finishes the send side, optionally waits for the peer to hang up,
// then closes the connection.
func (c *StreamConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.stream.Close()
		c.stream.CancelRead(0)
		if c.linger > 0 {
			select {
			case <-c.conn.Context().Done():
			case <-time.After(c.linger):
			}
		}
		if cerr := c.conn.CloseWithError(0, ""); err == nil {
			err = cerr
		}
	})
	return err
}

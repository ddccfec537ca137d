package wsbridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestListener(t *testing.T) *Listener {
	t.Helper()
	ln, err := Listen("127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestHealth(t *testing.T) {
	ln := newTestListener(t)

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["ok"])
}

func TestStreamAcrossMessages(t *testing.T) {
	ln := newTestListener(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(got)
			return
		}
		defer conn.Close()
		buf := make([]byte, 10)
		if _, err := io.ReadFull(conn, buf); err != nil {
			close(got)
			return
		}
		_, _ = conn.Write([]byte("OK"))
		got <- buf
	}()

	client, err := Dial(ctx, "ws://"+ln.Addr().String()+UploadPath)
	require.NoError(t, err)
	defer client.Close()

	// Three messages, one logical stream.
	for _, part := range []string{"abc", "defg", "hij"} {
		_, err := client.Write([]byte(part))
		require.NoError(t, err)
	}
	ack := make([]byte, 2)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(client, ack)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(ack))
	assert.Equal(t, "abcdefghij", string(<-got))
}

func TestReadDeadlineIsTimeout(t *testing.T) {
	ln := newTestListener(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	client, err := Dial(ctx, "ws://"+ln.Addr().String()+UploadPath)
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()
	require.NoError(t, server.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err = server.Read(make([]byte, 1))
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestAcceptAfterClose(t *testing.T) {
	ln := newTestListener(t)
	require.NoError(t, ln.Close())
	_, err := ln.Accept()
	assert.ErrorIs(t, err, net.ErrClosed)
}

func TestPeerCloseIsEOF(t *testing.T) {
	ln := newTestListener(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	client, err := Dial(ctx, "ws://"+ln.Addr().String()+UploadPath)
	require.NoError(t, err)
	server := <-accepted
	defer server.Close()

	require.NoError(t, client.Close())
	require.NoError(t, server.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = server.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampBuffers(t *testing.T) {
	assert.Equal(t, minUDPBuffer, clampUDPBuffer(-1))
	assert.Equal(t, maxUDPBuffer, clampUDPBuffer(maxUDPBuffer+1))
	assert.Equal(t, minTCPBuffer, clampTCPBuffer(0))
	assert.Equal(t, 8*1024*1024, clampTCPBuffer(8*1024*1024))
	assert.Equal(t, maxTCPBuffer, clampTCPBuffer(1<<40))
}

func TestTuneUDPUnavailable(t *testing.T) {
	res := TuneUDP(nil, 0)
	assert.Equal(t, StatusNA, res.Status)
	assert.Equal(t, minUDPBuffer, res.Requested)
}

func TestTuneTCPNonTCP(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	res := TuneTCP(a, 1024)
	assert.Equal(t, StatusNA, res.Status)
	assert.False(t, res.NoDelay)
}

func TestListenDialTCPTuned(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := ListenTCP(ctx, "127.0.0.1:0", 1<<20)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()

	client, err := DialTCP(ctx, ln.Addr().String(), 1<<20)
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	require.NotNil(t, server)
	defer server.Close()

	res := TuneTCP(server, 1<<20)
	assert.True(t, res.NoDelay)
	assert.NotEqual(t, StatusNA, res.Status)
}

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		0:                      "0B",
		512:                    "512B",
		4096:                   "4KiB",
		8 * 1024 * 1024:        "8MiB",
		3 * 1024 * 1024 / 2:    "1.50MiB",
		5 * 1024 * 1024 * 1024: "5.00GiB",
	}
	for n, want := range cases {
		assert.Equal(t, want, FormatSize(n), "size %d", n)
	}
}

package quictransport

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func TestServerConfig(t *testing.T) {
	config, err := ServerConfig()
	if err != nil {
		t.Fatalf("ServerConfig: %v", err)
	}
	if len(config.Certificates) == 0 {
		t.Fatal("ServerConfig has no certificates")
	}
	cert := config.Certificates[0]
	if cert.PrivateKey == nil || len(cert.Certificate) == 0 {
		t.Fatal("certificate is incomplete")
	}
	if len(config.NextProtos) != 1 || config.NextProtos[0] != ALPNProtocol {
		t.Errorf("ServerConfig NextProtos = %v, want [%s]", config.NextProtos, ALPNProtocol)
	}

	again, err := ServerConfig()
	if err != nil {
		t.Fatalf("ServerConfig: %v", err)
	}
	if &again.Certificates[0].Certificate[0][0] != &cert.Certificate[0][0] {
		t.Error("expected certificate to be generated once per process")
	}
}

func TestClientConfig(t *testing.T) {
	config := ClientConfig()
	if !config.InsecureSkipVerify {
		t.Error("ClientConfig InsecureSkipVerify should be true")
	}
	if len(config.NextProtos) != 1 || config.NextProtos[0] != ALPNProtocol {
		t.Errorf("ClientConfig NextProtos = %v, want [%s]", config.NextProtos, ALPNProtocol)
	}
}

func TestListenDialStream(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ln, err := Listen("127.0.0.1:0", 1<<20, logger)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		if _, err := io.ReadFull(conn, buf); err != nil {
			serverErr <- err
			return
		}
		_, err = conn.Write([]byte("OK"))
		serverErr <- err
	}()

	client, err := Dial(ctx, ln.Addr().String(), 1<<20, logger)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := client.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	ack := make([]byte, 2)
	if _, err := io.ReadFull(client, ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if string(ack) != "OK" {
		t.Fatalf("ack = %q", ack)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("server side: %v", err)
	}
}

func TestAcceptAfterClose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ln, err := Listen("127.0.0.1:0", 0, logger)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := ln.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := ln.Accept(); err != net.ErrClosed {
		t.Fatalf("Accept after close = %v, want net.ErrClosed", err)
	}
}

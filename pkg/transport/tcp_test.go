package transport

import (
	"bytes"
	"testing"
	"time"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
)

func TestTCPClientServerRoundTrip(t *testing.T) {
	serverDone := make(chan *TCPTransport, 1)
	serverErr := make(chan error, 1)
	go func() {
		srv, err := NewTCPServer(":18421", 2*time.Second)
		if err != nil {
			serverErr <- err
			return
		}
		serverDone <- srv
	}()

	time.Sleep(50 * time.Millisecond) // let the listener bind

	client, err := NewTCPClient("127.0.0.1:18421", time.Second)
	if err != nil {
		t.Fatalf("NewTCPClient: %v", err)
	}
	defer client.Close()

	var server *TCPTransport
	select {
	case server = <-serverDone:
	case err := <-serverErr:
		t.Fatalf("NewTCPServer: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not accept in time")
	}
	defer server.Close()

	msg := []byte("hello over tcp")
	if err := client.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 64)
	n, err := server.Recv(buf, time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Errorf("got %q, want %q", buf[:n], msg)
	}
}

func TestTCPClientConnectRefused(t *testing.T) {
	_, err := NewTCPClient("127.0.0.1:1", 200*time.Millisecond)
	if !cortexerr.Is(err, cortexerr.KindConnect) {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestTCPServerAcceptTimeout(t *testing.T) {
	start := time.Now()
	_, err := NewTCPServer(":18422", 100*time.Millisecond)
	elapsed := time.Since(start)

	if !cortexerr.Is(err, cortexerr.KindConnect) {
		t.Fatalf("expected connect error on accept timeout, got %v", err)
	}
	if elapsed < 100*time.Millisecond {
		t.Errorf("returned before accept timeout: %v", elapsed)
	}
}

func TestTCPTransportRecvTimeout(t *testing.T) {
	serverDone := make(chan *TCPTransport, 1)
	go func() {
		srv, err := NewTCPServer(":18423", 2*time.Second)
		if err == nil {
			serverDone <- srv
		}
	}()
	time.Sleep(50 * time.Millisecond)

	client, err := NewTCPClient("127.0.0.1:18423", time.Second)
	if err != nil {
		t.Fatalf("NewTCPClient: %v", err)
	}
	defer client.Close()
	server := <-serverDone
	defer server.Close()

	buf := make([]byte, 16)
	start := time.Now()
	_, err = client.Recv(buf, 50*time.Millisecond)
	elapsed := time.Since(start)

	if !cortexerr.Is(err, cortexerr.KindTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("returned before timeout: %v", elapsed)
	}
}

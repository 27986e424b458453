package transport

import (
	"net"
	"time"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
)

// TCPTransport wraps a net.Conn as a Transport. It backs both the TCP
// client and TCP server carriers once a connection exists; the only
// difference between them is how the *net.Conn was obtained.
type TCPTransport struct {
	conn  net.Conn
	start time.Time
}

// NewTCPClient dials addr ("host:port") with connectTimeout and returns
// a connected TCPTransport. NoTimeout dials without a deadline.
func NewTCPClient(addr string, connectTimeout time.Duration) (*TCPTransport, error) {
	if connectTimeout == NoTimeout {
		connectTimeout = 0 // net.Dialer: zero means no timeout
	}
	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, cortexerr.Wrap(cortexerr.KindConnect, "tcp dial "+addr, err)
	}
	return &TCPTransport{conn: conn, start: time.Now()}, nil
}

// NewTCPServer binds addr (":port" to listen on all interfaces), waits
// for exactly one connection within acceptTimeout, and closes the
// listening socket immediately after — CORTEX is a single-peer
// protocol, so no further accepts are served.
func NewTCPServer(addr string, acceptTimeout time.Duration) (*TCPTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, cortexerr.Wrap(cortexerr.KindConnect, "tcp listen "+addr, err)
	}
	defer ln.Close()

	if acceptTimeout > 0 {
		if tl, ok := ln.(*net.TCPListener); ok {
			tl.SetDeadline(time.Now().Add(acceptTimeout))
		}
	}

	conn, err := ln.Accept()
	if err != nil {
		return nil, cortexerr.Wrap(cortexerr.KindConnect, "tcp accept "+addr, err)
	}
	return &TCPTransport{conn: conn, start: time.Now()}, nil
}

// Send implements transport.Transport: writes buf in full or fails.
func (t *TCPTransport) Send(buf []byte) error {
	t.conn.SetWriteDeadline(time.Time{})
	sent := 0
	for sent < len(buf) {
		n, err := t.conn.Write(buf[sent:])
		if err != nil {
			return cortexerr.Wrap(cortexerr.KindIO, "tcp send", err)
		}
		sent += n
	}
	return nil
}

// Recv implements transport.Transport using a per-call read deadline.
func (t *TCPTransport) Recv(buf []byte, timeout time.Duration) (int, error) {
	if timeout == NoTimeout {
		t.conn.SetReadDeadline(time.Time{})
	} else {
		t.conn.SetReadDeadline(time.Now().Add(timeout))
	}

	n, err := t.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, cortexerr.New(cortexerr.KindTimeout, "tcp recv")
		}
		return 0, cortexerr.Wrap(cortexerr.KindConnReset, "tcp recv", err)
	}
	return n, nil
}

// Close implements transport.Transport. Idempotent: net.Conn.Close
// itself is documented safe to call more than once for our purposes
// (subsequent calls return an error which we deliberately swallow).
func (t *TCPTransport) Close() error {
	_ = t.conn.Close()
	return nil
}

// MonotonicTimestampNs implements transport.Transport.
func (t *TCPTransport) MonotonicTimestampNs() int64 {
	return time.Since(t.start).Nanoseconds()
}

package transport

import (
	"os"
	"time"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
	"golang.org/x/sys/unix"
)

// PipeTransport backs harness-to-child-process IO: one end of an
// AF_UNIX SOCK_STREAM pair created with Socketpair, the other end
// handed to the spawned adapter as stdin/stdout. Buffers are sized to
// at least 128 KiB so a full window fits before the peer has drained
// the prior one, avoiding a send/recv deadlock on a duplex pipe.
type PipeTransport struct {
	fd    int
	start time.Time
}

// MinSocketBuffer is the minimum socket send/recv buffer size set on
// each end of a duplex pipe pair.
const MinSocketBuffer = 128 * 1024

// NewPipePair creates an AF_UNIX SOCK_STREAM socketpair and returns a
// PipeTransport for each end. One end is typically handed to a spawned
// child as stdin/stdout; the other is retained by the caller.
func NewPipePair() (host, child *PipeTransport, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, cortexerr.Wrap(cortexerr.KindIO, "socketpair", err)
	}
	for _, fd := range fds {
		if err := setBufferSizes(fd); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, nil, err
		}
	}
	now := time.Now()
	return &PipeTransport{fd: fds[0], start: now}, &PipeTransport{fd: fds[1], start: now}, nil
}

// NewPipeFromFd wraps an already-open file descriptor (e.g. inherited
// stdin/stdout in the adapter process) as a PipeTransport.
func NewPipeFromFd(fd int) *PipeTransport {
	return &PipeTransport{fd: fd, start: time.Now()}
}

// Fd returns the raw file descriptor backing this transport, for
// callers that need to hand it to another process (e.g. as a spawned
// child's stdin/stdout) rather than read or write it directly.
func (p *PipeTransport) Fd() int {
	return p.fd
}

// File wraps the raw file descriptor as an *os.File suitable for
// exec.Cmd.Stdin/Stdout. The returned File and the PipeTransport share
// the same underlying fd; closing one affects the other.
func (p *PipeTransport) File() (*os.File, error) {
	if p.fd < 0 {
		return nil, cortexerr.New(cortexerr.KindIO, "pipe file: closed")
	}
	return os.NewFile(uintptr(p.fd), "cortex-pipe"), nil
}

func setBufferSizes(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, MinSocketBuffer); err != nil {
		return cortexerr.Wrap(cortexerr.KindIO, "setsockopt SO_SNDBUF", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, MinSocketBuffer); err != nil {
		return cortexerr.Wrap(cortexerr.KindIO, "setsockopt SO_RCVBUF", err)
	}
	return nil
}

// Send implements transport.Transport: writes buf in full or fails.
func (p *PipeTransport) Send(buf []byte) error {
	sent := 0
	for sent < len(buf) {
		n, err := unix.Write(p.fd, buf[sent:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return cortexerr.Wrap(cortexerr.KindIO, "pipe send", err)
		}
		if n == 0 {
			return cortexerr.New(cortexerr.KindConnReset, "pipe send")
		}
		sent += n
	}
	return nil
}

// Recv implements transport.Transport: polls the fd for readability
// within timeout, then performs one read.
func (p *PipeTransport) Recv(buf []byte, timeout time.Duration) (int, error) {
	pollMs := pollTimeoutMs(timeout)

	fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, pollMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, cortexerr.Wrap(cortexerr.KindIO, "pipe poll", err)
		}
		if n == 0 {
			return 0, cortexerr.New(cortexerr.KindTimeout, "pipe recv")
		}
		break
	}

	n, err := unix.Read(p.fd, buf)
	if err != nil {
		return 0, cortexerr.Wrap(cortexerr.KindIO, "pipe read", err)
	}
	if n == 0 {
		return 0, cortexerr.New(cortexerr.KindConnReset, "pipe recv EOF")
	}
	return n, nil
}

// Close implements transport.Transport. Idempotent: a second Close on
// an already-closed fd is reported as success.
func (p *PipeTransport) Close() error {
	if p.fd < 0 {
		return nil
	}
	fd := p.fd
	p.fd = -1
	if err := unix.Close(fd); err != nil {
		return cortexerr.Wrap(cortexerr.KindIO, "pipe close", err)
	}
	return nil
}

// MonotonicTimestampNs implements transport.Transport.
func (p *PipeTransport) MonotonicTimestampNs() int64 {
	return time.Since(p.start).Nanoseconds()
}

// pollTimeoutMs converts a Transport timeout into the millisecond value
// unix.Poll expects: NoTimeout becomes -1 (block indefinitely), 0
// polls once without blocking, otherwise rounds up to the nearest ms.
func pollTimeoutMs(timeout time.Duration) int {
	if timeout == NoTimeout {
		return -1
	}
	if timeout <= 0 {
		return 0
	}
	ms := (timeout + time.Millisecond - 1) / time.Millisecond
	return int(ms)
}

package transport

import (
	"strconv"
	"time"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
	"golang.org/x/sys/unix"
)

// SerialTransport is a POSIX termios-based UART carrier: raw mode,
// 8N1, configurable baud, VMIN=0/VTIME=0 so reads never block inside
// the kernel driver — all waiting happens in our own poll loop so the
// Transport timeout contract holds uniformly across carriers.
type SerialTransport struct {
	fd    int
	start time.Time
}

var baudConstants = map[int]uint32{
	50:     unix.B50,
	75:     unix.B75,
	110:    unix.B110,
	134:    unix.B134,
	150:    unix.B150,
	200:    unix.B200,
	300:    unix.B300,
	600:    unix.B600,
	1200:   unix.B1200,
	1800:   unix.B1800,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// OpenSerial opens path and configures it as a raw 8N1 terminal at
// baud, with an open timeout. Valid baud values are the standard
// POSIX rates from 50 to 921600; an unsupported rate is a
// configuration error.
func OpenSerial(path string, baud int, openTimeout time.Duration) (*SerialTransport, error) {
	speed, ok := baudConstants[baud]
	if !ok {
		return nil, cortexerr.New(cortexerr.KindConfig, "serial baud "+strconv.Itoa(baud))
	}

	type result struct {
		fd  int
		err error
	}
	done := make(chan result, 1)
	go func() {
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
		done <- result{fd, err}
	}()

	var timeoutCh <-chan time.Time // nil for NoTimeout: wait for the open
	if openTimeout != NoTimeout {
		timeoutCh = time.After(openTimeout)
	}

	var fd int
	select {
	case r := <-done:
		if r.err != nil {
			return nil, cortexerr.Wrap(cortexerr.KindConnect, "open serial "+path, r.err)
		}
		fd = r.fd
	case <-timeoutCh:
		return nil, cortexerr.New(cortexerr.KindTimeout, "open serial "+path)
	}

	// Clear O_NONBLOCK now that the open has succeeded; reads are
	// governed by our own poll-based timeout from here on.
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, cortexerr.Wrap(cortexerr.KindConfig, "serial clear nonblock", err)
	}

	if err := configureRaw(fd, speed); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &SerialTransport{fd: fd, start: time.Now()}, nil
}

func configureRaw(fd int, speed uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return cortexerr.Wrap(cortexerr.KindConfig, "get termios", err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	t.Cflag &^= unix.CBAUD
	t.Cflag |= speed
	t.Ispeed = speed
	t.Ospeed = speed

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return cortexerr.Wrap(cortexerr.KindConfig, "set termios", err)
	}
	return nil
}

// Send implements transport.Transport: writes buf in full or fails.
func (s *SerialTransport) Send(buf []byte) error {
	sent := 0
	for sent < len(buf) {
		n, err := unix.Write(s.fd, buf[sent:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return cortexerr.Wrap(cortexerr.KindIO, "serial send", err)
		}
		sent += n
	}
	return nil
}

// Recv implements transport.Transport: polls the tty for readability
// within timeout, since VMIN=0/VTIME=0 makes a bare read non-blocking.
func (s *SerialTransport) Recv(buf []byte, timeout time.Duration) (int, error) {
	ms := pollTimeoutMs(timeout)
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}

	for {
		n, err := unix.Poll(fds, ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, cortexerr.Wrap(cortexerr.KindIO, "serial poll", err)
		}
		if n == 0 {
			return 0, cortexerr.New(cortexerr.KindTimeout, "serial recv")
		}
		break
	}

	n, err := unix.Read(s.fd, buf)
	if err != nil {
		return 0, cortexerr.Wrap(cortexerr.KindIO, "serial read", err)
	}
	return n, nil
}

// Close implements transport.Transport. Idempotent.
func (s *SerialTransport) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	if err := unix.Close(fd); err != nil {
		return cortexerr.Wrap(cortexerr.KindIO, "serial close", err)
	}
	return nil
}

// MonotonicTimestampNs implements transport.Transport.
func (s *SerialTransport) MonotonicTimestampNs() int64 {
	return time.Since(s.start).Nanoseconds()
}

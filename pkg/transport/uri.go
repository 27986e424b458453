package transport

import (
	"net/url"
	"strconv"
	"time"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
)

// URI is a parsed transport URI: local://, tcp://host:port, tcp://:port,
// serial:///path?baud=N, or shm://name.
type URI struct {
	Scheme           string
	Host             string
	Port             string
	DevicePath       string
	Baud             int
	ShmName          string
	TimeoutMs        int
	AcceptTimeoutMs  int
}

const defaultBaud = 115200

// ParseURI parses a CORTEX transport URI into its component fields.
func ParseURI(raw string) (*URI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, cortexerr.Wrap(cortexerr.KindConfig, "parse transport uri", err)
	}

	out := &URI{Scheme: u.Scheme, Baud: defaultBaud}
	q := u.Query()

	if v := q.Get("timeout_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, cortexerr.Wrap(cortexerr.KindConfig, "parse timeout_ms", err)
		}
		out.TimeoutMs = n
	}
	if v := q.Get("accept_timeout_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, cortexerr.Wrap(cortexerr.KindConfig, "parse accept_timeout_ms", err)
		}
		out.AcceptTimeoutMs = n
	}

	switch u.Scheme {
	case "local":
		// no further fields
	case "tcp":
		out.Host = u.Hostname()
		out.Port = u.Port()
		if out.Port == "" {
			return nil, cortexerr.New(cortexerr.KindConfig, "tcp uri missing port")
		}
	case "serial":
		out.DevicePath = u.Path
		if out.DevicePath == "" {
			return nil, cortexerr.New(cortexerr.KindConfig, "serial uri missing device path")
		}
		if v := q.Get("baud"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, cortexerr.Wrap(cortexerr.KindConfig, "parse baud", err)
			}
			if n < 1 || n > 921600 {
				return nil, cortexerr.New(cortexerr.KindConfig, "baud out of range")
			}
			out.Baud = n
		}
	case "shm":
		out.ShmName = u.Host
		if out.ShmName == "" {
			return nil, cortexerr.New(cortexerr.KindConfig, "shm uri missing name")
		}
	default:
		return nil, cortexerr.New(cortexerr.KindConfig, "unrecognized transport scheme "+u.Scheme)
	}

	return out, nil
}

// Addr returns "host:port" for a tcp:// URI (host may be empty for a
// server-bind URI like tcp://:PORT).
func (u *URI) Addr() string {
	return u.Host + ":" + u.Port
}

// ConnectTimeout returns the configured timeout_ms as a Duration, or
// fallback if unset.
func (u *URI) ConnectTimeout(fallback time.Duration) time.Duration {
	if u.TimeoutMs > 0 {
		return time.Duration(u.TimeoutMs) * time.Millisecond
	}
	return fallback
}

// AcceptTimeout returns the configured accept_timeout_ms as a
// Duration, or fallback if unset.
func (u *URI) AcceptTimeout(fallback time.Duration) time.Duration {
	if u.AcceptTimeoutMs > 0 {
		return time.Duration(u.AcceptTimeoutMs) * time.Millisecond
	}
	return fallback
}

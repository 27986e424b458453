// Package transport provides the pluggable byte-stream carriers that the
// CORTEX protocol layer runs over: process pipe, TCP, serial, and shared
// memory. All carriers expose the same Transport interface so the
// protocol and session layers above never special-case the medium.
package transport

import "time"

// NoTimeout means "block until data arrives or the transport closes" —
// recv never polls forever against a dead peer, because Close always
// unblocks a pending Recv with an error.
const NoTimeout = time.Duration(-1)

// Transport is the capability set every carrier implements: send the
// full buffer or fail, receive with a per-call timeout budget, close
// idempotently, and report a monotonic device clock.
type Transport interface {
	// Send writes the entirety of buf or returns an error. Partial
	// writes are never reported as success; implementations loop
	// internally until done or failing.
	Send(buf []byte) error

	// Recv blocks until at least one byte is available, a deadline of
	// timeout elapses, or the transport closes, then copies as many
	// bytes as fit into buf and returns the count. timeout == 0 polls
	// once without blocking; timeout == NoTimeout blocks indefinitely
	// but still unblocks on Close.
	Recv(buf []byte, timeout time.Duration) (int, error)

	// Close releases the transport's resources. Calling Close more
	// than once is a no-op; a blocked Recv returns promptly after
	// Close is called from another goroutine.
	Close() error

	// MonotonicTimestampNs returns the current reading of this
	// transport's monotonic clock in nanoseconds. The clock is
	// strictly nondecreasing across calls.
	MonotonicTimestampNs() int64
}

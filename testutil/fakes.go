package testutil

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
	"github.com/westonvoglesonger/cortex/pkg/kernel"
)

// PipeTransport is an in-memory transport.Transport backed by an
// io.Pipe, used by protocol/adapter/client tests that need two
// connected endpoints without touching a real socket, TTY, or shared
// memory region.
type PipeTransport struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	closed atomic.Bool
	start  time.Time
}

// NewPipePair returns two connected PipeTransports: writes on one side
// are readable on the other, in both directions.
func NewPipePair() (a, b *PipeTransport) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	now := time.Now()
	a = &PipeTransport{r: ar, w: aw, start: now}
	b = &PipeTransport{r: br, w: bw, start: now}
	return a, b
}

// Send implements transport.Transport.
func (p *PipeTransport) Send(buf []byte) error {
	if p.closed.Load() {
		return cortexerr.New(cortexerr.KindConnReset, "test pipe send: closed")
	}
	n, err := p.w.Write(buf)
	if err != nil {
		return cortexerr.Wrap(cortexerr.KindIO, "test pipe send", err)
	}
	if n != len(buf) {
		return cortexerr.Wrap(cortexerr.KindIO, "test pipe send", io.ErrShortWrite)
	}
	return nil
}

// Recv implements transport.Transport. timeout is honored on a
// best-effort basis via a deadline goroutine, since io.Pipe itself has
// no native deadline support. EOF/closed-pipe conditions are reported
// as cortexerr.KindConnReset and deadline expiry as
// cortexerr.KindTimeout, matching the real carriers' contract so
// callers never need to special-case a test transport.
func (p *PipeTransport) Recv(buf []byte, timeout time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, cortexerr.New(cortexerr.KindConnReset, "test pipe recv: closed")
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := p.r.Read(buf)
		done <- result{n, err}
	}()

	var r result
	if timeout < 0 {
		r = <-done
	} else {
		select {
		case r = <-done:
		case <-time.After(timeout):
			return 0, cortexerr.New(cortexerr.KindTimeout, "test pipe recv")
		}
	}
	if r.err != nil {
		if errors.Is(r.err, io.EOF) || errors.Is(r.err, io.ErrClosedPipe) {
			return r.n, cortexerr.New(cortexerr.KindConnReset, "test pipe recv: EOF")
		}
		return r.n, cortexerr.Wrap(cortexerr.KindIO, "test pipe recv", r.err)
	}
	return r.n, nil
}

// Close implements transport.Transport. Closing unblocks any pending
// Recv with io.EOF/io.ErrClosedPipe, matching the real carriers'
// close-unblocks-recv contract. Idempotent.
func (p *PipeTransport) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.r.Close()
	return p.w.Close()
}

// MonotonicTimestampNs implements transport.Transport using the Go
// process's own monotonic clock reading relative to pair creation.
func (p *PipeTransport) MonotonicTimestampNs() int64 {
	return time.Since(p.start).Nanoseconds()
}

// FakeKernel is a configurable kernel.Kernel for adapter/session tests:
// it can scale input by a factor and simulate Init/Process failures.
type FakeKernel struct {
	mu           sync.Mutex
	Factor       float32
	FailOnInit   bool
	FailOnProc   bool
	ProcessCalls int
	TornDown     bool
}

// Init implements kernel.Kernel.
func (k *FakeKernel) Init(cfg kernel.Config) (uint32, uint32, error) {
	if k.FailOnInit {
		return 0, 0, errors.New("fake init failure")
	}
	if k.Factor == 0 {
		k.Factor = 1
	}
	return cfg.WindowLengthSamples, cfg.Channels, nil
}

// Process implements kernel.Kernel.
func (k *FakeKernel) Process(input, output []float32) error {
	k.mu.Lock()
	k.ProcessCalls++
	k.mu.Unlock()

	if k.FailOnProc {
		return errors.New("fake process failure")
	}
	for i, v := range input {
		output[i] = v * k.Factor
	}
	return nil
}

// Teardown implements kernel.Kernel.
func (k *FakeKernel) Teardown() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.TornDown = true
}

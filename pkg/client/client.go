// Package client implements the harness-side device client: dial a
// CORTEX transport URI, run the HELLO/CONFIG/ACK handshake, execute
// windows against the adapter, and tear the session down.
package client

import (
	"context"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/xid"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
	"github.com/westonvoglesonger/cortex/pkg/protocol"
	"github.com/westonvoglesonger/cortex/pkg/transport"
	"github.com/westonvoglesonger/cortex/pkg/wire"
)

// DefaultHandshakeTimeout bounds HELLO/CONFIG/ACK exchange.
const DefaultHandshakeTimeout = 5 * time.Second

// DefaultWindowTimeout bounds one Execute call's RESULT wait.
const DefaultWindowTimeout = 10 * time.Second

// DefaultTeardownGrace is how long Close waits for a spawned adapter
// to exit on its own after the transport is closed before escalating
// to SIGTERM, then SIGKILL.
const DefaultTeardownGrace = 2 * time.Second

// Timing is the device-side timing record returned by Execute,
// carrying the five nanosecond timestamps off the RESULT frame.
type Timing struct {
	Tin      int64
	Tstart   int64
	Tend     int64
	TfirstTx int64
	TlastTx  int64
}

// Launcher starts the adapter binary for a local:// URI and returns
// the transport wired to its stdin/stdout. Overridable via
// WithLauncher for tests that don't want to fork a real process.
type Launcher func(ctx context.Context, binaryPath string) (transport.Transport, *exec.Cmd, error)

// Client is the harness-side handle to one adapter session.
type Client struct {
	mu               sync.Mutex
	t                transport.Transport
	cmd              *exec.Cmd
	closed           bool
	handshakeTimeout time.Duration
	windowTimeout    time.Duration
	chunkSize        int
	launcher         Launcher
	teardownGrace    time.Duration

	adapterName     string
	adapterBootID   uint32
	kernelNames     []string
	sessionID       uint32
	outWindowLen    uint32
	outChannels     uint32
	nextSequence    uint32
}

// Option configures a Client at Dial time.
type Option func(*Client)

// WithHandshakeTimeout overrides DefaultHandshakeTimeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.handshakeTimeout = d }
}

// WithWindowTimeout overrides DefaultWindowTimeout.
func WithWindowTimeout(d time.Duration) Option {
	return func(c *Client) { c.windowTimeout = d }
}

// WithChunkSize overrides the WINDOW_CHUNK payload size used by
// Execute's SendWindow call.
func WithChunkSize(n int) Option {
	return func(c *Client) { c.chunkSize = n }
}

// WithLauncher overrides how a local:// URI spawns its adapter
// process, for tests that substitute a fake launcher.
func WithLauncher(l Launcher) Option {
	return func(c *Client) { c.launcher = l }
}

// WithTeardownGrace overrides DefaultTeardownGrace.
func WithTeardownGrace(d time.Duration) Option {
	return func(c *Client) { c.teardownGrace = d }
}

// Dial opens a transport for uri (spawning a local adapter process for
// local://), then performs the handshake up through ACK. cfg supplies
// the CONFIG fields the adapter is asked to run against; a zero
// cfg.SessionID is replaced by one derived from a fresh xid.
func Dial(ctx context.Context, uri string, cfg protocol.ConfigPayload, opts ...Option) (*Client, error) {
	u, err := transport.ParseURI(uri)
	if err != nil {
		return nil, err
	}

	c := &Client{
		handshakeTimeout: DefaultHandshakeTimeout,
		windowTimeout:    DefaultWindowTimeout,
		chunkSize:        protocol.DefaultChunkSize,
		teardownGrace:    DefaultTeardownGrace,
		launcher:         defaultLauncher,
	}
	for _, opt := range opts {
		opt(c)
	}

	t, cmd, err := dialTransport(ctx, u, c)
	if err != nil {
		return nil, err
	}
	c.t = t
	c.cmd = cmd

	if err := c.handshake(cfg); err != nil {
		c.Close(ctx)
		return nil, err
	}
	return c, nil
}

func dialTransport(ctx context.Context, u *transport.URI, c *Client) (transport.Transport, *exec.Cmd, error) {
	switch u.Scheme {
	case "local":
		return c.launcher(ctx, "cortex-adapter")
	case "tcp":
		// Host present (tcp://host:port): dial out, the normal
		// direction where the adapter is already listening. Host
		// absent (tcp://:port): bind and wait for the adapter to
		// connect in, the reverse direction for adapters that can't
		// accept inbound connections themselves.
		if u.Host == "" {
			t, err := transport.NewTCPServer(u.Addr(), u.AcceptTimeout(c.handshakeTimeout))
			return t, nil, err
		}
		t, err := transport.NewTCPClient(u.Addr(), u.ConnectTimeout(c.handshakeTimeout))
		return t, nil, err
	case "serial":
		t, err := transport.OpenSerial(u.DevicePath, u.Baud, u.ConnectTimeout(c.handshakeTimeout))
		return t, nil, err
	case "shm":
		t, err := transport.CreateSHM(u.ShmName)
		return t, nil, err
	default:
		return nil, nil, cortexerr.New(cortexerr.KindConfig, "dial: unrecognized scheme "+u.Scheme)
	}
}

// defaultLauncher spawns binaryPath as a child process connected via an
// AF_UNIX socketpair on stdin/stdout, mirroring the teacher's device
// open pattern generalized from an ioctl handle to a subprocess pipe.
//
// The child's fd is wrapped in exactly one *os.File (never both an
// os.File and a live PipeTransport), and that File is closed in the
// parent right after Start(): os/exec dups the fd into the child
// during Start, so closing the parent's copy afterward is the
// standard release pattern and avoids a duplicate close racing an
// os.File finalizer against PipeTransport's own Close.
func defaultLauncher(ctx context.Context, binaryPath string) (transport.Transport, *exec.Cmd, error) {
	host, child, err := transport.NewPipePair()
	if err != nil {
		return nil, nil, err
	}
	childFile, err := child.File()
	if err != nil {
		host.Close()
		child.Close()
		return nil, nil, err
	}

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Stdin = childFile
	cmd.Stdout = childFile

	if err := cmd.Start(); err != nil {
		host.Close()
		childFile.Close()
		return nil, nil, cortexerr.Wrap(cortexerr.KindConnect, "spawn adapter", err)
	}
	childFile.Close()
	return host, cmd, nil
}

func (c *Client) handshake(cfg protocol.ConfigPayload) error {
	buf := make([]byte, protocol.MaxSingleFramePayload)

	typ, n, err := protocol.RecvFrame(c.t, buf, c.handshakeTimeout)
	if err != nil {
		return err
	}
	if typ != protocol.FrameHello {
		return cortexerr.New(cortexerr.KindUnexpectedFrame, "dial: expected HELLO")
	}
	hello, err := protocol.DecodeHello(buf[:n])
	if err != nil {
		return err
	}
	if hello.AdapterABIVersion != protocol.Version {
		return cortexerr.New(cortexerr.KindVersionMismatch, "dial: adapter abi version")
	}
	c.adapterName = hello.AdapterName
	c.adapterBootID = hello.AdapterBootID
	c.kernelNames = hello.KernelNames

	if cfg.SessionID == 0 {
		id := xid.New().Bytes()
		cfg.SessionID = wire.Uint32(id, len(id)-4)
	}
	if err := protocol.SendFrame(c.t, protocol.FrameConfig, cfg.Encode()); err != nil {
		return err
	}
	c.sessionID = cfg.SessionID

	typ, n, err = protocol.RecvFrame(c.t, buf, c.handshakeTimeout)
	if err != nil {
		return err
	}
	if typ == protocol.FrameError {
		errPayload, decErr := protocol.DecodeError(buf[:n])
		if decErr != nil {
			return decErr
		}
		return cortexerr.New(cortexerr.Kind(errPayload.ErrorCode), "adapter rejected config: "+errPayload.Message)
	}
	if typ != protocol.FrameAck {
		return cortexerr.New(cortexerr.KindUnexpectedFrame, "dial: expected ACK")
	}
	ack, err := protocol.DecodeAck(buf[:n])
	if err != nil {
		return err
	}
	if ack.AcknowledgedKind != protocol.AckKindConfig {
		return cortexerr.New(cortexerr.KindAckMismatch, "dial: ack acknowledged wrong kind")
	}
	c.outWindowLen = ack.OutputWindowLengthSamples
	c.outChannels = ack.OutputChannels
	return nil
}

// AdapterName returns the adapter's advertised name from HELLO.
func (c *Client) AdapterName() string { return c.adapterName }

// KernelNames returns the adapter's advertised loadable kernel names.
func (c *Client) KernelNames() []string { return c.kernelNames }

// OutputShape returns the output window length and channel count
// negotiated at ACK.
func (c *Client) OutputShape() (windowLengthSamples, channels uint32) {
	return c.outWindowLen, c.outChannels
}

// Execute sends one window of input (flat, channel-major float32
// samples) and blocks for its RESULT, copying kernel output into
// output and returning the device's timing record. output must be at
// least windowLengthSamples*channels (as negotiated by ACK) long.
func (c *Client) Execute(input []float32, output []float32) (Timing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Timing{}, cortexerr.New(cortexerr.KindIO, "execute: client closed")
	}

	sequence := c.nextSequence
	raw := make([]byte, len(input)*4)
	wire.PutFloat32Slice(raw, 0, input)

	if err := protocol.SendWindow(c.t, sequence, raw, c.chunkSize); err != nil {
		return Timing{}, err
	}

	buf := make([]byte, protocol.MaxSingleFramePayload)
	typ, n, err := protocol.RecvFrame(c.t, buf, c.windowTimeout)
	if err != nil {
		return Timing{}, err
	}
	if typ == protocol.FrameError {
		errPayload, decErr := protocol.DecodeError(buf[:n])
		if decErr != nil {
			return Timing{}, decErr
		}
		return Timing{}, cortexerr.New(cortexerr.Kind(errPayload.ErrorCode), "adapter error: "+errPayload.Message)
	}
	if typ != protocol.FrameResult {
		return Timing{}, cortexerr.New(cortexerr.KindUnexpectedFrame, "execute: expected RESULT")
	}
	result, err := protocol.DecodeResult(buf[:n])
	if err != nil {
		return Timing{}, err
	}
	if result.SessionID != c.sessionID {
		return Timing{}, cortexerr.New(cortexerr.KindSessionMismatch, "execute: result session id mismatch")
	}
	if result.Sequence != sequence {
		return Timing{}, cortexerr.New(cortexerr.KindChunkSequence, "execute: result sequence mismatch")
	}
	if len(output) < len(result.Output) {
		return Timing{}, cortexerr.New(cortexerr.KindBufferTooSmall, "execute: output buffer too small")
	}
	copy(output, result.Output)

	c.nextSequence++
	return Timing{
		Tin:      int64(result.Tin),
		Tstart:   int64(result.Tstart),
		Tend:     int64(result.Tend),
		TfirstTx: int64(result.TfirstTx),
		TlastTx:  int64(result.TlastTx),
	}, nil
}

// Close tears the session down: closing the transport signals EOF to
// the adapter. For a spawned child, Close waits up to the configured
// teardown grace for it to exit, then escalates to SIGTERM and finally
// SIGKILL, reaping the process either way. Idempotent.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cmd := c.cmd
	c.mu.Unlock()

	closeErr := c.t.Close()
	if cmd == nil {
		return closeErr
	}
	return waitOrKill(cmd, c.teardownGrace)
}

// waitOrKill waits for cmd to exit on its own within grace, otherwise
// sends SIGTERM and waits again, then SIGKILL as a last resort. The
// process is reaped (via Wait) in every path.
func waitOrKill(cmd *exec.Cmd, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return wrapExitErr(err)
	case <-time.After(grace):
	}

	cmd.Process.Signal(syscall.SIGTERM)
	select {
	case err := <-done:
		return wrapExitErr(err)
	case <-time.After(grace):
	}

	cmd.Process.Kill()
	return wrapExitErr(<-done)
}

func wrapExitErr(err error) error {
	if err == nil {
		return nil
	}
	return cortexerr.Wrap(cortexerr.KindPrematureExit, "adapter process exit", err)
}

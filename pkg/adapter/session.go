// Package adapter implements the device-side state machine that
// answers a harness across a Transport: handshake, kernel load, and
// the run loop of recv-window/process/send-result.
package adapter

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/xid"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
	"github.com/westonvoglesonger/cortex/pkg/kernel"
	"github.com/westonvoglesonger/cortex/pkg/protocol"
	"github.com/westonvoglesonger/cortex/pkg/transport"
	"github.com/westonvoglesonger/cortex/pkg/wire"
)

// HandshakeTimeout bounds HELLO/CONFIG/ACK exchange.
const HandshakeTimeout = 5 * time.Second

// WindowTimeout bounds one RECV_WINDOW in the run loop.
const WindowTimeout = 10 * time.Second

// state names the adapter's position in the lifecycle spec.md §4.5
// names: STARTUP through CLEANUP.
type state int

const (
	stateStartup state = iota
	stateHandshakeSendHello
	stateHandshakeRecvConfig
	stateLoadKernel
	stateHandshakeSendAck
	stateRun
	stateCleanup
)

// Session runs the adapter-side protocol state machine over one
// Transport for the lifetime of one kernel invocation.
type Session struct {
	t          transport.Transport
	name       string
	bootID     uint32
	maxWindow  uint32
	maxChans   uint32
	metrics    *Metrics
	shutdownCh chan os.Signal

	kern         kernel.Kernel
	cfg          kernel.Config
	pluginName   string
	sessionID    uint32
	outWindowLen uint32
	outChannels  uint32
	sequence     uint32
}

// Option configures a Session at construction.
type Option func(*Session)

// WithAdapterName overrides the adapter's advertised name (default
// "cortex-adapter").
func WithAdapterName(name string) Option {
	return func(s *Session) { s.name = name }
}

// WithMetrics attaches a Metrics collector; nil (the default) disables
// metrics entirely.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// NewSession constructs a Session bound to t. The adapter_boot_id
// advertised in HELLO is derived from a freshly generated xid, giving
// process-start randomness without a dedicated RNG dependency.
func NewSession(t transport.Transport, opts ...Option) *Session {
	s := &Session{
		t:          t,
		name:       "cortex-adapter",
		bootID:     bootIDFromXid(),
		maxWindow:  protocol.MaxWindowBytes / 4,
		maxChans:   64,
		shutdownCh: make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func bootIDFromXid() uint32 {
	b := xid.New().Bytes()
	return wire.Uint32(b[len(b)-4:], 0)
}

// Run drives the full lifecycle: handshake, kernel load, the run loop,
// and cleanup. It returns nil on a clean shutdown (peer EOF or caught
// signal) and a non-nil error for any fatal condition, including one
// already reported to the peer via an ERROR frame.
func (s *Session) Run() error {
	signal.Notify(s.shutdownCh, syscall.SIGTERM)
	defer signal.Stop(s.shutdownCh)
	defer s.t.Close()

	st := stateHandshakeSendHello
	for {
		switch st {
		case stateHandshakeSendHello:
			if err := s.sendHello(); err != nil {
				return err
			}
			st = stateHandshakeRecvConfig

		case stateHandshakeRecvConfig:
			if err := s.recvConfig(); err != nil {
				s.sendErrorBestEffort(err)
				return err
			}
			st = stateLoadKernel

		case stateLoadKernel:
			if err := s.loadKernel(); err != nil {
				s.sendErrorBestEffort(err)
				return err
			}
			st = stateHandshakeSendAck

		case stateHandshakeSendAck:
			if err := s.sendAck(); err != nil {
				return err
			}
			st = stateRun

		case stateRun:
			done, err := s.runOnce()
			if err != nil {
				s.teardownKernel()
				return err
			}
			if done {
				st = stateCleanup
			}

		case stateCleanup:
			s.teardownKernel()
			return nil
		}
	}
}

func (s *Session) teardownKernel() {
	if s.kern != nil {
		s.kern.Teardown()
		s.kern = nil
	}
}

func (s *Session) shuttingDown() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

func (s *Session) sendHello() error {
	hello := &protocol.HelloPayload{
		AdapterBootID:     s.bootID,
		AdapterName:       s.name,
		AdapterABIVersion: protocol.Version,
		MaxWindowSamples:  s.maxWindow,
		MaxChannels:       s.maxChans,
		KernelNames:       kernel.Names(),
	}
	if err := protocol.SendFrame(s.t, protocol.FrameHello, hello.Encode()); err != nil {
		return err
	}
	s.metrics.addFramesSent(1)
	return nil
}

// recvConfig reads CONFIG, validates its bounds, and stashes the
// resolved kernel.Config and session ID for later states.
func (s *Session) recvConfig() error {
	buf := make([]byte, protocol.MaxSingleFramePayload)
	typ, n, err := protocol.RecvFrame(s.t, buf, HandshakeTimeout)
	if err != nil {
		return err
	}
	s.metrics.addFramesRecv(1)
	if typ != protocol.FrameConfig {
		return cortexerr.New(cortexerr.KindUnexpectedFrame, "recv_config")
	}
	c, err := protocol.DecodeConfig(buf[:n])
	if err != nil {
		return err
	}

	if c.SampleRateHz == 0 || c.WindowLengthSamples == 0 || c.HopSamples == 0 || c.Channels == 0 {
		return cortexerr.New(cortexerr.KindConfig, "recv_config: zero dimension")
	}
	totalBytes := uint64(c.WindowLengthSamples) * uint64(c.Channels) * 4
	if totalBytes > protocol.MaxWindowBytes {
		return cortexerr.New(cortexerr.KindConfig, "recv_config: window exceeds max bytes")
	}
	if _, ok := kernel.Lookup(c.PluginName); !ok {
		return cortexerr.New(cortexerr.KindUnknownKernel, "recv_config: "+c.PluginName)
	}

	s.cfg = kernel.Config{
		SampleRateHz:        c.SampleRateHz,
		WindowLengthSamples: c.WindowLengthSamples,
		HopSamples:          c.HopSamples,
		Channels:            c.Channels,
		Params:              c.PluginParams,
		Calibration:         c.Calibration,
	}
	s.sessionID = c.SessionID
	s.pluginName = c.PluginName
	return nil
}

// loadKernel instantiates the kernel named by CONFIG, calibrates it if
// it implements Calibrator and calibration bytes were supplied, then
// calls Init to resolve the output window shape.
func (s *Session) loadKernel() error {
	factory, ok := kernel.Lookup(s.pluginName)
	if !ok {
		return cortexerr.New(cortexerr.KindUnknownKernel, "load_kernel: "+s.pluginName)
	}
	k := factory()

	if len(s.cfg.Calibration) > 0 {
		cal, ok := k.(kernel.Calibrator)
		if !ok {
			return cortexerr.New(cortexerr.KindMissingSymbol, "load_kernel: calibrate")
		}
		if err := cal.Calibrate(s.cfg.Calibration); err != nil {
			return cortexerr.Wrap(cortexerr.KindInitFailure, "calibrate", err)
		}
	}

	outLen, outChans, err := k.Init(s.cfg)
	if err != nil {
		return cortexerr.Wrap(cortexerr.KindInitFailure, "init", err)
	}
	if outLen == 0 {
		outLen = s.cfg.WindowLengthSamples
	}
	if outChans == 0 {
		outChans = s.cfg.Channels
	}

	s.kern = k
	s.outWindowLen = outLen
	s.outChannels = outChans
	return nil
}

func (s *Session) sendAck() error {
	ack := &protocol.AckPayload{
		AcknowledgedKind:          protocol.AckKindConfig,
		OutputWindowLengthSamples: s.outWindowLen,
		OutputChannels:            s.outChannels,
	}
	if err := protocol.SendFrame(s.t, protocol.FrameAck, ack.Encode()); err != nil {
		return err
	}
	s.metrics.addFramesSent(1)
	return nil
}

func (s *Session) sendErrorBestEffort(cause error) {
	var kind cortexerr.Kind
	if ce, ok := cause.(*cortexerr.Error); ok {
		kind = ce.Kind
	}
	payload := &protocol.ErrorPayload{
		ErrorCode: uint32(kind),
		Message:   cause.Error(),
	}
	if err := protocol.SendFrame(s.t, protocol.FrameError, payload.Encode()); err != nil {
		log.Printf("adapter: failed to send ERROR frame after %v: %v", cause, err)
	}
	s.metrics.addFatalError(kind)
}

// runOnce executes one RECV_WINDOW/PROCESS/SEND_RESULT cycle. done is
// true when the loop should terminate: a pending shutdown signal
// observed between windows, or a clean peer close (EOF) while waiting
// for the next window.
func (s *Session) runOnce() (done bool, err error) {
	if s.shuttingDown() {
		return true, nil
	}

	data, tin, err := protocol.RecvWindow(s.t, s.sequence, WindowTimeout)
	if err != nil {
		if cortexerr.Is(err, cortexerr.KindConnReset) {
			return true, nil
		}
		return false, err
	}

	inSamples := len(data) / 4 / int(s.cfg.Channels)
	input := make([]float32, inSamples*int(s.cfg.Channels))
	wire.Float32Slice(data, 0, input)
	output := make([]float32, int(s.outWindowLen)*int(s.outChannels))

	tstart := s.t.MonotonicTimestampNs()
	if procErr := s.kern.Process(input, output); procErr != nil {
		return false, cortexerr.Wrap(cortexerr.KindInitFailure, "process", procErr)
	}
	tend := s.t.MonotonicTimestampNs()

	result := &protocol.ResultPayload{
		SessionID:           s.sessionID,
		Sequence:            s.sequence,
		Tin:                 uint64(tin),
		Tstart:              uint64(tstart),
		Tend:                uint64(tend),
		TfirstTx:            uint64(s.t.MonotonicTimestampNs()),
		OutputLengthSamples: s.outWindowLen,
		OutputChannels:      s.outChannels,
		Output:              output,
	}
	payload := result.Encode()
	// RESULT embeds tlast_tx, so it must be known before the frame is
	// sent; patch it in right after serialization instead of before,
	// per spec.md's as-sent approximation for tfirst_tx/tlast_tx.
	protocol.PatchResultTlastTx(payload, uint64(s.t.MonotonicTimestampNs()))
	if err := protocol.SendFrame(s.t, protocol.FrameResult, payload); err != nil {
		return false, err
	}
	s.metrics.addFramesSent(1)
	s.metrics.addFramesRecv(1)
	s.metrics.observeWindowLatency(time.Duration(tend - tstart))

	s.sequence++
	return false, nil
}

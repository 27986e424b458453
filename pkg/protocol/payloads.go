package protocol

import "github.com/westonvoglesonger/cortex/pkg/wire"

// HelloPayload is the adapter's capability advertisement, sent once at
// startup before any CONFIG is received.
type HelloPayload struct {
	AdapterBootID     uint32
	AdapterName       string
	AdapterABIVersion uint8
	MaxWindowSamples  uint32
	MaxChannels       uint32
	KernelNames       []string
}

// Encode packs h into its wire representation.
func (h *HelloPayload) Encode() []byte {
	fixed := 4 + AdapterNameSize + 1 + 1 + 2 + 4 + 4
	buf := make([]byte, fixed+len(h.KernelNames)*KernelNameSize)

	off := 0
	wire.PutUint32(buf, off, h.AdapterBootID)
	off += 4
	wire.PutFixedString(buf, off, AdapterNameSize, h.AdapterName)
	off += AdapterNameSize
	buf[off] = h.AdapterABIVersion
	off++
	buf[off] = byte(len(h.KernelNames))
	off++
	wire.PutUint16(buf, off, 0) // reserved
	off += 2
	wire.PutUint32(buf, off, h.MaxWindowSamples)
	off += 4
	wire.PutUint32(buf, off, h.MaxChannels)
	off += 4

	for _, name := range h.KernelNames {
		wire.PutFixedString(buf, off, KernelNameSize, name)
		off += KernelNameSize
	}
	return buf
}

// DecodeHello parses a HELLO payload. Trailing device-metadata fields
// beyond the declared kernel-name list are ignored: only what is
// parseable from num_kernels counts as contract.
func DecodeHello(buf []byte) (*HelloPayload, error) {
	const fixed = 4 + AdapterNameSize + 1 + 1 + 2 + 4 + 4
	if len(buf) < fixed {
		return nil, errShort("HELLO")
	}
	h := &HelloPayload{}
	off := 0
	h.AdapterBootID = wire.Uint32(buf, off)
	off += 4
	h.AdapterName = wire.FixedString(buf, off, AdapterNameSize)
	off += AdapterNameSize
	h.AdapterABIVersion = buf[off]
	off++
	numKernels := int(buf[off])
	off++
	off += 2 // reserved
	h.MaxWindowSamples = wire.Uint32(buf, off)
	off += 4
	h.MaxChannels = wire.Uint32(buf, off)
	off += 4

	need := off + numKernels*KernelNameSize
	if len(buf) < need {
		return nil, errShort("HELLO kernel names")
	}
	h.KernelNames = make([]string, numKernels)
	for i := 0; i < numKernels; i++ {
		h.KernelNames[i] = wire.FixedString(buf, off, KernelNameSize)
		off += KernelNameSize
	}
	return h, nil
}

// ConfigPayload selects a kernel and its parameters for the session.
type ConfigPayload struct {
	SessionID           uint32
	SampleRateHz        uint32
	WindowLengthSamples uint32
	HopSamples          uint32
	Channels            uint32
	PluginName          string
	PluginParams        string
	Calibration         []byte
}

// Encode packs c into its wire representation.
func (c *ConfigPayload) Encode() []byte {
	fixed := 4 + 4 + 4 + 4 + 4 + PluginNameSize + PluginParamsSize + 4
	buf := make([]byte, fixed+len(c.Calibration))

	off := 0
	wire.PutUint32(buf, off, c.SessionID)
	off += 4
	wire.PutUint32(buf, off, c.SampleRateHz)
	off += 4
	wire.PutUint32(buf, off, c.WindowLengthSamples)
	off += 4
	wire.PutUint32(buf, off, c.HopSamples)
	off += 4
	wire.PutUint32(buf, off, c.Channels)
	off += 4
	wire.PutFixedString(buf, off, PluginNameSize, c.PluginName)
	off += PluginNameSize
	wire.PutFixedString(buf, off, PluginParamsSize, c.PluginParams)
	off += PluginParamsSize
	wire.PutUint32(buf, off, uint32(len(c.Calibration)))
	off += 4
	copy(buf[off:], c.Calibration)
	return buf
}

// DecodeConfig parses a CONFIG payload.
func DecodeConfig(buf []byte) (*ConfigPayload, error) {
	const fixed = 4 + 4 + 4 + 4 + 4 + PluginNameSize + PluginParamsSize + 4
	if len(buf) < fixed {
		return nil, errShort("CONFIG")
	}
	c := &ConfigPayload{}
	off := 0
	c.SessionID = wire.Uint32(buf, off)
	off += 4
	c.SampleRateHz = wire.Uint32(buf, off)
	off += 4
	c.WindowLengthSamples = wire.Uint32(buf, off)
	off += 4
	c.HopSamples = wire.Uint32(buf, off)
	off += 4
	c.Channels = wire.Uint32(buf, off)
	off += 4
	c.PluginName = wire.FixedString(buf, off, PluginNameSize)
	off += PluginNameSize
	c.PluginParams = wire.FixedString(buf, off, PluginParamsSize)
	off += PluginParamsSize
	calSize := wire.Uint32(buf, off)
	off += 4

	if len(buf) < off+int(calSize) {
		return nil, errShort("CONFIG calibration")
	}
	c.Calibration = append([]byte(nil), buf[off:off+int(calSize)]...)
	return c, nil
}

// AckPayload confirms CONFIG acceptance and resolved output dimensions.
type AckPayload struct {
	AcknowledgedKind          uint32
	OutputWindowLengthSamples uint32
	OutputChannels            uint32
}

const ackPayloadSize = 4 + 4 + 4

// Encode packs a into its wire representation.
func (a *AckPayload) Encode() []byte {
	buf := make([]byte, ackPayloadSize)
	wire.PutUint32(buf, 0, a.AcknowledgedKind)
	wire.PutUint32(buf, 4, a.OutputWindowLengthSamples)
	wire.PutUint32(buf, 8, a.OutputChannels)
	return buf
}

// DecodeAck parses an ACK payload.
func DecodeAck(buf []byte) (*AckPayload, error) {
	if len(buf) < ackPayloadSize {
		return nil, errShort("ACK")
	}
	return &AckPayload{
		AcknowledgedKind:          wire.Uint32(buf, 0),
		OutputWindowLengthSamples: wire.Uint32(buf, 4),
		OutputChannels:            wire.Uint32(buf, 8),
	}, nil
}

// WindowChunkPayload carries one contiguous byte range of a window.
type WindowChunkPayload struct {
	Sequence    uint32
	TotalBytes  uint32
	OffsetBytes uint32
	ChunkLength uint32
	Flags       uint32
	Data        []byte
}

const windowChunkHeaderSize = 4 + 4 + 4 + 4 + 4

// Encode packs w into its wire representation.
func (w *WindowChunkPayload) Encode() []byte {
	buf := make([]byte, windowChunkHeaderSize+len(w.Data))
	wire.PutUint32(buf, 0, w.Sequence)
	wire.PutUint32(buf, 4, w.TotalBytes)
	wire.PutUint32(buf, 8, w.OffsetBytes)
	wire.PutUint32(buf, 12, w.ChunkLength)
	wire.PutUint32(buf, 16, w.Flags)
	copy(buf[windowChunkHeaderSize:], w.Data)
	return buf
}

// DecodeWindowChunk parses a WINDOW_CHUNK payload.
func DecodeWindowChunk(buf []byte) (*WindowChunkPayload, error) {
	if len(buf) < windowChunkHeaderSize {
		return nil, errShort("WINDOW_CHUNK")
	}
	w := &WindowChunkPayload{
		Sequence:    wire.Uint32(buf, 0),
		TotalBytes:  wire.Uint32(buf, 4),
		OffsetBytes: wire.Uint32(buf, 8),
		ChunkLength: wire.Uint32(buf, 12),
		Flags:       wire.Uint32(buf, 16),
	}
	if len(buf) < windowChunkHeaderSize+int(w.ChunkLength) {
		return nil, errShort("WINDOW_CHUNK data")
	}
	w.Data = append([]byte(nil), buf[windowChunkHeaderSize:windowChunkHeaderSize+int(w.ChunkLength)]...)
	return w, nil
}

// IsLast reports whether this chunk carries the LAST flag.
func (w *WindowChunkPayload) IsLast() bool {
	return w.Flags&ChunkFlagLast != 0
}

// ResultPayload carries kernel output plus device timing for one window.
//
// TfirstTx and TlastTx are necessarily approximate: both values are
// embedded in this same payload, so tlast_tx can't reflect a timestamp
// taken after the frame actually reaches the wire. Adapters capture
// tfirst_tx before Encode and tlast_tx right after (see
// PatchResultTlastTx), which folds serialization cost into the gap
// between the two and excludes real transmit latency.
type ResultPayload struct {
	SessionID           uint32
	Sequence            uint32
	Tin                 uint64
	Tstart              uint64
	Tend                uint64
	TfirstTx            uint64
	TlastTx             uint64
	OutputLengthSamples uint32
	OutputChannels      uint32
	Output              []float32
}

const resultHeaderSize = 4 + 4 + 8*5 + 4 + 4

// resultTlastTxOffset is TlastTx's byte offset within Encode's output.
const resultTlastTxOffset = 4 + 4 + 8 + 8 + 8 + 8

// Encode packs r into its wire representation.
func (r *ResultPayload) Encode() []byte {
	buf := make([]byte, resultHeaderSize+len(r.Output)*4)
	off := 0
	wire.PutUint32(buf, off, r.SessionID)
	off += 4
	wire.PutUint32(buf, off, r.Sequence)
	off += 4
	wire.PutUint64(buf, off, r.Tin)
	off += 8
	wire.PutUint64(buf, off, r.Tstart)
	off += 8
	wire.PutUint64(buf, off, r.Tend)
	off += 8
	wire.PutUint64(buf, off, r.TfirstTx)
	off += 8
	wire.PutUint64(buf, off, r.TlastTx)
	off += 8
	wire.PutUint32(buf, off, r.OutputLengthSamples)
	off += 4
	wire.PutUint32(buf, off, r.OutputChannels)
	off += 4
	wire.PutFloat32Slice(buf, off, r.Output)
	return buf
}

// PatchResultTlastTx overwrites the TlastTx field in an already-encoded
// RESULT payload with v. This lets the adapter capture tlast_tx after
// serialization finishes without re-encoding the whole output buffer.
func PatchResultTlastTx(buf []byte, v uint64) {
	wire.PutUint64(buf, resultTlastTxOffset, v)
}

// DecodeResult parses a RESULT payload.
func DecodeResult(buf []byte) (*ResultPayload, error) {
	if len(buf) < resultHeaderSize {
		return nil, errShort("RESULT")
	}
	r := &ResultPayload{}
	off := 0
	r.SessionID = wire.Uint32(buf, off)
	off += 4
	r.Sequence = wire.Uint32(buf, off)
	off += 4
	r.Tin = wire.Uint64(buf, off)
	off += 8
	r.Tstart = wire.Uint64(buf, off)
	off += 8
	r.Tend = wire.Uint64(buf, off)
	off += 8
	r.TfirstTx = wire.Uint64(buf, off)
	off += 8
	r.TlastTx = wire.Uint64(buf, off)
	off += 8
	r.OutputLengthSamples = wire.Uint32(buf, off)
	off += 4
	r.OutputChannels = wire.Uint32(buf, off)
	off += 4

	n := int(r.OutputLengthSamples) * int(r.OutputChannels)
	if len(buf) < off+n*4 {
		return nil, errShort("RESULT output")
	}
	r.Output = make([]float32, n)
	wire.Float32Slice(buf, off, r.Output)
	return r, nil
}

// ErrorPayload reports a fatal error, in either direction.
type ErrorPayload struct {
	ErrorCode uint32
	Message   string
}

const errorPayloadSize = 4 + ErrorMessageSize

// Encode packs e into its wire representation.
func (e *ErrorPayload) Encode() []byte {
	buf := make([]byte, errorPayloadSize)
	wire.PutUint32(buf, 0, e.ErrorCode)
	wire.PutFixedString(buf, 4, ErrorMessageSize, e.Message)
	return buf
}

// DecodeError parses an ERROR payload.
func DecodeError(buf []byte) (*ErrorPayload, error) {
	if len(buf) < errorPayloadSize {
		return nil, errShort("ERROR")
	}
	return &ErrorPayload{
		ErrorCode: wire.Uint32(buf, 0),
		Message:   wire.FixedString(buf, 4, ErrorMessageSize),
	}, nil
}

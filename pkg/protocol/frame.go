package protocol

import (
	"time"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
	"github.com/westonvoglesonger/cortex/pkg/transport"
	"github.com/westonvoglesonger/cortex/pkg/wire"
)

// SendFrame serializes the 16-byte header and payload and writes them to
// t. The header's CRC covers header[0:12] then the payload; the CRC
// field itself (header[12:16]) is never part of its own input.
func SendFrame(t transport.Transport, typ FrameType, payload []byte) error {
	header := make([]byte, HeaderSize)
	wire.PutUint32(header, 0, Magic)
	header[4] = Version
	header[5] = byte(typ)
	wire.PutUint16(header, 6, 0) // flags, reserved zero
	wire.PutUint32(header, 8, uint32(len(payload)))

	crc := wire.Checksum(0, header[:12])
	crc = wire.Checksum(crc, payload)
	wire.PutUint32(header, 12, crc)

	if err := t.Send(header); err != nil {
		return cortexerr.Wrap(cortexerr.KindIO, "send_frame header", err)
	}
	if len(payload) > 0 {
		if err := t.Send(payload); err != nil {
			return cortexerr.Wrap(cortexerr.KindIO, "send_frame payload", err)
		}
	}
	return nil
}

// RecvFrame reads one frame from t within timeout, hunting for the
// magic constant to recover from partial or corrupted streams. It
// returns the frame's type and the number of payload bytes copied into
// buf. All reads share the single timeout budget passed in; if the
// deadline elapses mid-frame, the partial frame is discarded and a
// timeout error is returned.
func RecvFrame(t transport.Transport, buf []byte, timeout time.Duration) (FrameType, int, error) {
	deadline, hasDeadline := deadlineFor(timeout)

	if err := huntMagic(t, deadline, hasDeadline); err != nil {
		return FrameUnknown, 0, err
	}

	rest := make([]byte, HeaderSize-4)
	if err := readFull(t, rest, deadline, hasDeadline); err != nil {
		return FrameUnknown, 0, err
	}

	header := make([]byte, HeaderSize)
	wire.PutUint32(header, 0, Magic)
	copy(header[4:], rest)

	version := header[4]
	if version != Version {
		return FrameUnknown, 0, cortexerr.New(cortexerr.KindVersionMismatch, "recv_frame")
	}
	typ := FrameType(header[5])
	payloadLen := int(wire.Uint32(header, 8))
	wantCRC := wire.Uint32(header, 12)

	if payloadLen > MaxSingleFramePayload {
		return FrameUnknown, 0, cortexerr.New(cortexerr.KindOversize, "recv_frame")
	}
	if payloadLen > len(buf) {
		return FrameUnknown, 0, cortexerr.New(cortexerr.KindBufferTooSmall, "recv_frame payload")
	}

	payload := buf[:payloadLen]
	if payloadLen > 0 {
		if err := readFull(t, payload, deadline, hasDeadline); err != nil {
			return FrameUnknown, 0, err
		}
	}

	gotCRC := wire.Checksum(0, header[:12])
	gotCRC = wire.Checksum(gotCRC, payload)
	if gotCRC != wantCRC {
		return FrameUnknown, 0, cortexerr.New(cortexerr.KindCRCMismatch, "recv_frame")
	}

	return typ, payloadLen, nil
}

// huntMagic reads one byte at a time into a 4-byte sliding window until
// it matches Magic, discarding everything before it.
func huntMagic(t transport.Transport, deadline time.Time, hasDeadline bool) error {
	var window [4]byte
	filled := 0
	one := make([]byte, 1)

	for {
		if err := readFull(t, one, deadline, hasDeadline); err != nil {
			return err
		}
		if filled < 4 {
			window[filled] = one[0]
			filled++
		} else {
			window[0], window[1], window[2] = window[1], window[2], window[3]
			window[3] = one[0]
		}
		if filled == 4 && wire.Uint32(window[:], 0) == Magic {
			return nil
		}
	}
}

// readFull reads exactly len(buf) bytes from t, looping recv calls as
// needed, honoring the shared deadline.
func readFull(t transport.Transport, buf []byte, deadline time.Time, hasDeadline bool) error {
	got := 0
	for got < len(buf) {
		remaining := transport.NoTimeout
		if hasDeadline {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return cortexerr.New(cortexerr.KindTimeout, "recv_frame")
			}
		}
		n, err := t.Recv(buf[got:], remaining)
		if err != nil {
			return cortexerr.Wrap(cortexerr.KindIO, "recv_frame", err)
		}
		got += n
	}
	return nil
}

func deadlineFor(timeout time.Duration) (time.Time, bool) {
	if timeout == transport.NoTimeout {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}

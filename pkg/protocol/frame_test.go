package protocol

import (
	"bytes"
	"testing"
	"time"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
	"github.com/westonvoglesonger/cortex/pkg/wire"
	"github.com/westonvoglesonger/cortex/testutil"
)

func TestSendRecvFrameRoundTrip(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	payload := []byte("hello config payload")
	done := make(chan error, 1)
	go func() {
		done <- SendFrame(host, FrameConfig, payload)
	}()

	buf := make([]byte, MaxSingleFramePayload)
	typ, n, err := RecvFrame(adapter, buf, time.Second)
	if err != nil {
		t.Fatalf("RecvFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	if typ != FrameConfig {
		t.Errorf("got type %v, want %v", typ, FrameConfig)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Errorf("got payload %q, want %q", buf[:n], payload)
	}
}

func TestSendRecvFrameEmptyPayload(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	go func() { _ = SendFrame(host, FrameAck, nil) }()

	buf := make([]byte, MaxSingleFramePayload)
	typ, n, err := RecvFrame(adapter, buf, time.Second)
	if err != nil {
		t.Fatalf("RecvFrame: %v", err)
	}
	if typ != FrameAck || n != 0 {
		t.Errorf("got type=%v n=%d, want ACK n=0", typ, n)
	}
}

func TestRecvFrameCRCMismatch(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	payload := []byte("corrupt me")
	header := make([]byte, HeaderSize)
	buildValidHeader(header, FrameHello, payload)
	header[12] ^= 0xFF // flip every bit of the CRC's low byte

	go func() {
		_ = host.Send(header)
		_ = host.Send(payload)
	}()

	buf := make([]byte, MaxSingleFramePayload)
	_, _, err := RecvFrame(adapter, buf, time.Second)
	if !cortexerr.Is(err, cortexerr.KindCRCMismatch) {
		t.Fatalf("expected CRC mismatch error, got %v", err)
	}
}

func TestRecvFrameVersionMismatch(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	payload := []byte("x")
	header := make([]byte, HeaderSize)
	buildValidHeader(header, FrameHello, payload)
	header[4] = 99 // bogus version

	go func() {
		_ = host.Send(header)
		_ = host.Send(payload)
	}()

	buf := make([]byte, MaxSingleFramePayload)
	_, _, err := RecvFrame(adapter, buf, time.Second)
	if !cortexerr.Is(err, cortexerr.KindVersionMismatch) {
		t.Fatalf("expected version mismatch error, got %v", err)
	}
}

func TestRecvFrameOversize(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	header := make([]byte, HeaderSize)
	buildValidHeader(header, FrameHello, nil)
	// Lie about payload length without sending that many bytes.
	header[8] = 0xFF
	header[9] = 0xFF
	header[10] = 0xFF
	header[11] = 0x00 // ~16MB, over MaxSingleFramePayload

	go func() { _ = host.Send(header) }()

	buf := make([]byte, MaxSingleFramePayload)
	_, _, err := RecvFrame(adapter, buf, time.Second)
	if !cortexerr.Is(err, cortexerr.KindOversize) {
		t.Fatalf("expected oversize error, got %v", err)
	}
}

func TestRecvFrameMagicHuntSkipsGarbage(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	garbage := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	payload := []byte("after garbage")

	go func() {
		_ = host.Send(garbage)
		_ = SendFrame(host, FrameHello, payload)
	}()

	buf := make([]byte, MaxSingleFramePayload)
	typ, n, err := RecvFrame(adapter, buf, time.Second)
	if err != nil {
		t.Fatalf("RecvFrame: %v", err)
	}
	if typ != FrameHello || !bytes.Equal(buf[:n], payload) {
		t.Errorf("got type=%v payload=%q, want HELLO %q", typ, buf[:n], payload)
	}
}

func TestRecvFrameTimeoutOnSilentStream(t *testing.T) {
	_, adapter := testutil.NewPipePair()
	defer adapter.Close()

	buf := make([]byte, MaxSingleFramePayload)
	start := time.Now()
	_, _, err := RecvFrame(adapter, buf, 50*time.Millisecond)
	elapsed := time.Since(start)

	if !cortexerr.Is(err, cortexerr.KindTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("returned before timeout elapsed: %v", elapsed)
	}
}

// buildValidHeader writes a correctly-checksummed header for payload
// into header, so tests can corrupt one field afterward.
func buildValidHeader(header []byte, typ FrameType, payload []byte) {
	header[0] = 0x58
	header[1] = 0x54
	header[2] = 0x52
	header[3] = 0x43
	header[4] = Version
	header[5] = byte(typ)
	header[6] = 0
	header[7] = 0
	n := uint32(len(payload))
	header[8] = byte(n)
	header[9] = byte(n >> 8)
	header[10] = byte(n >> 16)
	header[11] = byte(n >> 24)

	crc := wire.Checksum(0, header[:12])
	crc = wire.Checksum(crc, payload)
	header[12] = byte(crc)
	header[13] = byte(crc >> 8)
	header[14] = byte(crc >> 16)
	header[15] = byte(crc >> 24)
}

package protocol

import (
	"bytes"
	"testing"
	"time"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
	"github.com/westonvoglesonger/cortex/testutil"
)

func TestSendRecvWindowRoundTrip(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	window := testutil.MakeRandomBytes(40960) // W=160, C=64, 4 bytes/sample

	done := make(chan error, 1)
	go func() {
		done <- SendWindow(host, 0, window, DefaultChunkSize)
	}()

	got, _, err := RecvWindow(adapter, 0, time.Second)
	if err != nil {
		t.Fatalf("RecvWindow: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendWindow: %v", err)
	}
	if !bytes.Equal(got, window) {
		t.Fatal("reassembled window does not match original")
	}
}

func TestSendRecvWindowExactlyFiveChunks(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	window := testutil.MakeRandomBytes(160 * 64 * 4) // 40 KiB

	var chunksSeen []*WindowChunkPayload
	recvDone := make(chan error, 1)
	go func() {
		buf := make([]byte, MaxSingleFramePayload)
		for {
			typ, n, err := RecvFrame(adapter, buf, time.Second)
			if err != nil {
				recvDone <- err
				return
			}
			chunk, err := DecodeWindowChunk(buf[:n])
			if err != nil {
				recvDone <- err
				return
			}
			if typ != FrameWindowChunk {
				recvDone <- cortexerr.New(cortexerr.KindUnexpectedFrame, "test")
				return
			}
			chunksSeen = append(chunksSeen, chunk)
			if chunk.IsLast() {
				recvDone <- nil
				return
			}
		}
	}()

	if err := SendWindow(host, 3, window, DefaultChunkSize); err != nil {
		t.Fatalf("SendWindow: %v", err)
	}
	if err := <-recvDone; err != nil {
		t.Fatalf("recv loop: %v", err)
	}

	if len(chunksSeen) != 5 {
		t.Fatalf("got %d chunks, want 5", len(chunksSeen))
	}
	last := chunksSeen[len(chunksSeen)-1]
	if !last.IsLast() || last.OffsetBytes != 32768 {
		t.Errorf("last chunk: offset=%d last=%v, want offset=32768 last=true", last.OffsetBytes, last.IsLast())
	}
}

func TestSendRecvWindowTinyChunkSize(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	window := testutil.MakeRandomBytes(17) // deliberately not a multiple of chunk size

	done := make(chan error, 1)
	go func() { done <- SendWindow(host, 1, window, 3) }()

	got, _, err := RecvWindow(adapter, 1, time.Second)
	if err != nil {
		t.Fatalf("RecvWindow: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendWindow: %v", err)
	}
	if !bytes.Equal(got, window) {
		t.Fatal("reassembled window does not match original")
	}
}

func TestSendRecvWindowMaxSize(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	window := testutil.MakeRandomBytes(MaxWindowBytes) // 256 KiB, 32 chunks @ 8 KiB

	var chunkCount int
	recvDone := make(chan error, 1)
	go func() {
		buf := make([]byte, MaxSingleFramePayload)
		for {
			_, n, err := RecvFrame(adapter, buf, time.Second)
			if err != nil {
				recvDone <- err
				return
			}
			chunk, err := DecodeWindowChunk(buf[:n])
			if err != nil {
				recvDone <- err
				return
			}
			chunkCount++
			if chunk.IsLast() {
				recvDone <- nil
				return
			}
		}
	}()

	if err := SendWindow(host, 5, window, DefaultChunkSize); err != nil {
		t.Fatalf("SendWindow: %v", err)
	}
	if err := <-recvDone; err != nil {
		t.Fatalf("recv loop: %v", err)
	}
	if chunkCount != 32 {
		t.Errorf("got %d chunks, want 32", chunkCount)
	}
}

func TestRecvWindowRejectsSequenceMismatch(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	go func() { _ = SendWindow(host, 9, []byte{1, 2, 3, 4}, DefaultChunkSize) }()

	_, _, err := RecvWindow(adapter, 0, time.Second)
	if !cortexerr.Is(err, cortexerr.KindChunkSequence) {
		t.Fatalf("expected chunk sequence error, got %v", err)
	}
}

func TestRecvWindowRejectsTotalBytesMismatch(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	go func() {
		p1 := &WindowChunkPayload{Sequence: 0, TotalBytes: 8, OffsetBytes: 0, ChunkLength: 4, Data: []byte{1, 2, 3, 4}}
		_ = SendFrame(host, FrameWindowChunk, p1.Encode())
		p2 := &WindowChunkPayload{Sequence: 0, TotalBytes: 16, OffsetBytes: 4, ChunkLength: 4, Flags: ChunkFlagLast, Data: []byte{5, 6, 7, 8}}
		_ = SendFrame(host, FrameWindowChunk, p2.Encode())
	}()

	_, _, err := RecvWindow(adapter, 0, time.Second)
	if !cortexerr.Is(err, cortexerr.KindChunkTotalMismatch) {
		t.Fatalf("expected total-bytes mismatch error, got %v", err)
	}
}

func TestRecvWindowRejectsOverlap(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	go func() {
		p1 := &WindowChunkPayload{Sequence: 0, TotalBytes: 8, OffsetBytes: 0, ChunkLength: 4, Data: []byte{1, 2, 3, 4}}
		_ = SendFrame(host, FrameWindowChunk, p1.Encode())
		p2 := &WindowChunkPayload{Sequence: 0, TotalBytes: 8, OffsetBytes: 2, ChunkLength: 6, Flags: ChunkFlagLast, Data: []byte{1, 2, 3, 4, 5, 6}}
		_ = SendFrame(host, FrameWindowChunk, p2.Encode())
	}()

	_, _, err := RecvWindow(adapter, 0, time.Second)
	if !cortexerr.Is(err, cortexerr.KindChunkOverlap) {
		t.Fatalf("expected overlap error, got %v", err)
	}
}

func TestRecvWindowRejectsDuplicate(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	go func() {
		p := &WindowChunkPayload{Sequence: 0, TotalBytes: 8, OffsetBytes: 0, ChunkLength: 4, Data: []byte{1, 2, 3, 4}}
		_ = SendFrame(host, FrameWindowChunk, p.Encode())
		_ = SendFrame(host, FrameWindowChunk, p.Encode())
	}()

	_, _, err := RecvWindow(adapter, 0, time.Second)
	if !cortexerr.Is(err, cortexerr.KindChunkDuplicate) {
		t.Fatalf("expected duplicate chunk error, got %v", err)
	}
}

func TestRecvWindowRejectsGapAtCompletion(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	go func() {
		// total is 12 bytes but only bytes [8,12) are sent, marked LAST,
		// leaving [0,8) unfilled.
		p := &WindowChunkPayload{Sequence: 0, TotalBytes: 12, OffsetBytes: 8, ChunkLength: 4, Flags: ChunkFlagLast, Data: []byte{1, 2, 3, 4}}
		_ = SendFrame(host, FrameWindowChunk, p.Encode())
	}()

	_, _, err := RecvWindow(adapter, 0, time.Second)
	if !cortexerr.Is(err, cortexerr.KindChunkGap) {
		t.Fatalf("expected gap error, got %v", err)
	}
}

func TestRecvWindowRejectsOverflow(t *testing.T) {
	host, adapter := testutil.NewPipePair()
	defer host.Close()
	defer adapter.Close()

	go func() {
		p := &WindowChunkPayload{Sequence: 0, TotalBytes: 8, OffsetBytes: 4, ChunkLength: 8, Flags: ChunkFlagLast, Data: make([]byte, 8)}
		_ = SendFrame(host, FrameWindowChunk, p.Encode())
	}()

	_, _, err := RecvWindow(adapter, 0, time.Second)
	if !cortexerr.Is(err, cortexerr.KindChunkOverflow) {
		t.Fatalf("expected overflow error, got %v", err)
	}
}

package protocol

import (
	"sort"
	"time"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
	"github.com/westonvoglesonger/cortex/pkg/transport"
)

// SendWindow splits window (a little-endian float32 byte buffer) into
// WINDOW_CHUNK frames of chunkSize bytes (the last one possibly
// smaller) and sends them in order, stamping the final chunk with
// ChunkFlagLast. It aborts on the first send error.
func SendWindow(t transport.Transport, sequence uint32, window []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	total := uint32(len(window))

	for offset := 0; offset < len(window) || total == 0; {
		end := offset + chunkSize
		if end > len(window) {
			end = len(window)
		}
		chunk := window[offset:end]

		flags := uint32(0)
		if uint32(end) == total {
			flags = ChunkFlagLast
		}

		payload := &WindowChunkPayload{
			Sequence:    sequence,
			TotalBytes:  total,
			OffsetBytes: uint32(offset),
			ChunkLength: uint32(len(chunk)),
			Flags:       flags,
			Data:        chunk,
		}
		if err := SendFrame(t, FrameWindowChunk, payload.Encode()); err != nil {
			return err
		}
		if total == 0 {
			break
		}
		offset = end
	}
	return nil
}

// byteRange is a half-open [start, end) span used to track which parts
// of a window's reassembly buffer have been filled.
type byteRange struct {
	start, end uint32
}

// RecvWindow reassembles one logical window from WINDOW_CHUNK frames
// with the given sequence, enforcing the tiling invariants: matching
// sequence and total_bytes across chunks, no offset/length overflow, no
// overlap, no duplicate, and exactly one LAST chunk completing the
// tiling with no gaps. It returns the assembled bytes and the
// transport's monotonic timestamp captured immediately after
// reassembly completes.
func RecvWindow(t transport.Transport, expectedSequence uint32, timeout time.Duration) ([]byte, int64, error) {
	deadline, hasDeadline := deadlineFor(timeout)

	var (
		buf      []byte
		total    uint32
		haveSize bool
		filled   []byteRange
		lastSeen bool
	)

	frameBuf := make([]byte, MaxSingleFramePayload)

	for {
		remaining := transport.NoTimeout
		if hasDeadline {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return nil, 0, cortexerr.New(cortexerr.KindTimeout, "recv_window")
			}
		}

		typ, n, err := RecvFrame(t, frameBuf, remaining)
		if err != nil {
			return nil, 0, err
		}
		if typ != FrameWindowChunk {
			return nil, 0, cortexerr.New(cortexerr.KindUnexpectedFrame, "recv_window")
		}

		chunk, err := DecodeWindowChunk(frameBuf[:n])
		if err != nil {
			return nil, 0, err
		}
		if chunk.Sequence != expectedSequence {
			return nil, 0, cortexerr.New(cortexerr.KindChunkSequence, "recv_window")
		}
		if !haveSize {
			total = chunk.TotalBytes
			buf = make([]byte, total)
			haveSize = true
		} else if chunk.TotalBytes != total {
			return nil, 0, cortexerr.New(cortexerr.KindChunkTotalMismatch, "recv_window")
		}

		start := chunk.OffsetBytes
		end := start + chunk.ChunkLength
		if end < start || end > total {
			return nil, 0, cortexerr.New(cortexerr.KindChunkOverflow, "recv_window")
		}

		for _, r := range filled {
			if start == r.start && end == r.end {
				return nil, 0, cortexerr.New(cortexerr.KindChunkDuplicate, "recv_window")
			}
			if start < r.end && end > r.start {
				return nil, 0, cortexerr.New(cortexerr.KindChunkOverlap, "recv_window")
			}
		}

		copy(buf[start:end], chunk.Data)
		filled = append(filled, byteRange{start, end})

		if chunk.IsLast() {
			lastSeen = true
		}

		if lastSeen && tilesWithoutGap(filled, total) {
			return buf, t.MonotonicTimestampNs(), nil
		}
		if lastSeen && !tilesWithoutGap(filled, total) {
			return nil, 0, cortexerr.New(cortexerr.KindChunkGap, "recv_window")
		}
	}
}

// tilesWithoutGap reports whether the filled ranges exactly cover
// [0, total) with no gaps, once sorted by start offset.
func tilesWithoutGap(filled []byteRange, total uint32) bool {
	if total == 0 {
		return true
	}
	ranges := append([]byteRange(nil), filled...)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	var cursor uint32
	for _, r := range ranges {
		if r.start != cursor {
			return false
		}
		cursor = r.end
	}
	return cursor == total
}

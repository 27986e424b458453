// Package wire provides endian-safe scalar encoding for the CORTEX wire
// protocol. All multi-byte integers and floats on the wire are
// little-endian; these helpers read and write them at arbitrary byte
// offsets without any alignment assumption, so the protocol layer never
// reinterprets a network buffer as a typed struct.
package wire

import "math"

// PutUint16 writes v as little-endian into buf[off:off+2].
func PutUint16(buf []byte, off int, v uint16) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
}

// Uint16 reads a little-endian uint16 from buf[off:off+2].
func Uint16(buf []byte, off int) uint16 {
	return uint16(buf[off]) | uint16(buf[off+1])<<8
}

// PutUint32 writes v as little-endian into buf[off:off+4].
func PutUint32(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

// Uint32 reads a little-endian uint32 from buf[off:off+4].
func Uint32(buf []byte, off int) uint32 {
	return uint32(buf[off]) | uint32(buf[off+1])<<8 |
		uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
}

// PutUint64 writes v as little-endian into buf[off:off+8].
func PutUint64(buf []byte, off int, v uint64) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
	buf[off+4] = byte(v >> 32)
	buf[off+5] = byte(v >> 40)
	buf[off+6] = byte(v >> 48)
	buf[off+7] = byte(v >> 56)
}

// Uint64 reads a little-endian uint64 from buf[off:off+8].
func Uint64(buf []byte, off int) uint64 {
	return uint64(buf[off]) | uint64(buf[off+1])<<8 |
		uint64(buf[off+2])<<16 | uint64(buf[off+3])<<24 |
		uint64(buf[off+4])<<32 | uint64(buf[off+5])<<40 |
		uint64(buf[off+6])<<48 | uint64(buf[off+7])<<56
}

// PutInt32 writes v as little-endian into buf[off:off+4].
func PutInt32(buf []byte, off int, v int32) {
	PutUint32(buf, off, uint32(v))
}

// Int32 reads a little-endian int32 from buf[off:off+4].
func Int32(buf []byte, off int) int32 {
	return int32(Uint32(buf, off))
}

// PutFloat32 writes v as an IEEE-754 little-endian float32 into
// buf[off:off+4].
func PutFloat32(buf []byte, off int, v float32) {
	PutUint32(buf, off, math.Float32bits(v))
}

// Float32 reads an IEEE-754 little-endian float32 from buf[off:off+4].
func Float32(buf []byte, off int) float32 {
	return math.Float32frombits(Uint32(buf, off))
}

// PutFloat32Slice encodes a slice of float32 samples as consecutive
// little-endian IEEE-754 values starting at buf[off].
func PutFloat32Slice(buf []byte, off int, samples []float32) {
	for i, s := range samples {
		PutFloat32(buf, off+i*4, s)
	}
}

// Float32Slice decodes len(out) consecutive little-endian float32
// samples starting at buf[off] into out. buf must hold at least
// off+len(out)*4 bytes.
func Float32Slice(buf []byte, off int, out []float32) {
	for i := range out {
		out[i] = Float32(buf, off+i*4)
	}
}

// PutFixedString writes s into buf[off:off+size], NUL-padding any
// remainder. s longer than size is truncated to size bytes.
func PutFixedString(buf []byte, off, size int, s string) {
	n := copy(buf[off:off+size], s)
	for i := n; i < size; i++ {
		buf[off+i] = 0
	}
}

// FixedString reads a NUL-padded fixed-width string from
// buf[off:off+size], trimming the trailing NUL padding.
func FixedString(buf []byte, off, size int) string {
	field := buf[off : off+size]
	n := 0
	for n < len(field) && field[n] != 0 {
		n++
	}
	return string(field[:n])
}

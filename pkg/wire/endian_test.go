package wire

import "testing"

func TestUint16RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	PutUint16(buf, 1, 0xBEEF)
	if got := Uint16(buf, 1); got != 0xBEEF {
		t.Errorf("got %#x, want %#x", got, 0xBEEF)
	}
	if buf[1] != 0xEF || buf[2] != 0xBE {
		t.Errorf("bytes not little-endian: %x", buf)
	}
}

func TestUint32RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	PutUint32(buf, 2, 0xDEADBEEF)
	if got := Uint32(buf, 2); got != 0xDEADBEEF {
		t.Errorf("got %#x, want %#x", got, 0xDEADBEEF)
	}
	if buf[2] != 0xEF || buf[3] != 0xBE || buf[4] != 0xAD || buf[5] != 0xDE {
		t.Errorf("bytes not little-endian: %x", buf)
	}
}

func TestUint64RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	var v uint64 = 0x0123456789ABCDEF
	PutUint64(buf, 0, v)
	if got := Uint64(buf, 0); got != v {
		t.Errorf("got %#x, want %#x", got, v)
	}
}

func TestInt32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	PutInt32(buf, 0, -12345)
	if got := Int32(buf, 0); got != -12345 {
		t.Errorf("got %d, want %d", got, -12345)
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	tests := []float32{0, 1, -1, 3.14159, -0.0001, 1e20}
	for _, v := range tests {
		PutFloat32(buf, 0, v)
		if got := Float32(buf, 0); got != v {
			t.Errorf("got %v, want %v", got, v)
		}
	}
}

func TestFloat32SliceRoundTrip(t *testing.T) {
	samples := []float32{1.5, -2.25, 0, 100.125}
	buf := make([]byte, len(samples)*4)
	PutFloat32Slice(buf, 0, samples)
	out := make([]float32, len(samples))
	Float32Slice(buf, 0, out)
	for i := range samples {
		if out[i] != samples[i] {
			t.Errorf("index %d: got %v, want %v", i, out[i], samples[i])
		}
	}
}

func TestFixedStringRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	PutFixedString(buf, 0, 16, "hello")
	if got := FixedString(buf, 0, 16); got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
	for i := 5; i < 16; i++ {
		if buf[i] != 0 {
			t.Errorf("expected NUL padding at index %d, got %d", i, buf[i])
		}
	}
}

func TestFixedStringTruncation(t *testing.T) {
	buf := make([]byte, 4)
	PutFixedString(buf, 0, 4, "toolong")
	if got := FixedString(buf, 0, 4); got != "tool" {
		t.Errorf("got %q, want %q", got, "tool")
	}
}

func TestFixedStringEmpty(t *testing.T) {
	buf := make([]byte, 8)
	PutFixedString(buf, 0, 8, "")
	if got := FixedString(buf, 0, 8); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

package cortexerr

import (
	"errors"
	"testing"
)

func TestAllKindsHaveNames(t *testing.T) {
	kinds := []Kind{
		KindTimeout, KindConnReset, KindIO, KindConnect, KindConfig,
		KindMagicNotFound, KindVersionMismatch, KindOversize, KindCRCMismatch,
		KindBufferTooSmall, KindInvalidFrame,
		KindChunkSequence, KindChunkTotalMismatch, KindChunkOverflow,
		KindChunkOverlap, KindChunkGap, KindChunkDuplicate,
		KindSessionMismatch, KindUnexpectedFrame, KindAckMismatch,
		KindUnknownKernel, KindMissingSymbol, KindInitFailure, KindCalibrationTooLarge,
		KindPrematureExit, KindTeardownGrace,
	}

	for _, k := range kinds {
		name := k.String()
		if name == "" {
			t.Errorf("kind %d has empty name", k)
		}
		if len(name) >= 5 && name[:5] == "kind(" {
			t.Errorf("kind %d has no defined name: %s", k, name)
		}
	}
}

func TestKindStringUnknown(t *testing.T) {
	got := Kind(9999).String()
	want := "kind(9999)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestErrorImplementsError(t *testing.T) {
	var err error = &Error{Kind: KindTimeout, Context: "recv"}
	if err.Error() == "" {
		t.Error("Error() returned empty string")
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "kind only",
			err:      &Error{Kind: KindTimeout},
			expected: "timeout",
		},
		{
			name:     "with context",
			err:      &Error{Kind: KindTimeout, Context: "recv frame"},
			expected: "recv frame: timeout",
		},
		{
			name:     "with cause",
			err:      &Error{Kind: KindIO, Cause: errors.New("short write")},
			expected: "i/o failure: short write",
		},
		{
			name:     "with context and cause",
			err:      &Error{Kind: KindIO, Context: "send frame", Cause: errors.New("short write")},
			expected: "send frame: i/o failure: short write",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.expected {
				t.Errorf("got %q, want %q", got, tc.expected)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindIO, "ctx", cause)
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap did not return the wrapped cause")
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	a := New(KindTimeout, "recv")
	b := New(KindTimeout, "different context")
	c := New(KindIO, "recv")

	if !errors.Is(a, b) {
		t.Error("expected errors with same Kind to match via errors.Is")
	}
	if errors.Is(a, c) {
		t.Error("expected errors with different Kind to not match")
	}
}

func TestIsHelper(t *testing.T) {
	err := New(KindCRCMismatch, "recv_frame")
	if !Is(err, KindCRCMismatch) {
		t.Error("Is() should match same kind")
	}
	if Is(err, KindTimeout) {
		t.Error("Is() should not match different kind")
	}
}

// Package testutil provides shared test helpers and fakes for the
// protocol, transport, adapter, and client packages: an in-memory
// transport pair, a registrable fake kernel, and synthetic window data
// and timing assertions shaped around the CORTEX wire protocol.
package testutil

import "testing"

// MakeRandomBytes creates deterministic pseudo-random test data (not
// cryptographically random — repeatable across runs), used to fill
// WINDOW_CHUNK payloads with recognizable, non-zero content.
func MakeRandomBytes(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i*17 + 11) % 256)
	}
	return data
}

// AssertTimingMonotonic fails unless the five device timestamps off a
// RESULT frame (tin, tstart, tend, tfirst_tx, tlast_tx) are
// nondecreasing, the ordering invariant spec.md places on device
// timing for every window.
func AssertTimingMonotonic(t *testing.T, tin, tstart, tend, tfirstTx, tlastTx uint64, msg string) {
	t.Helper()
	if !(tin <= tstart && tstart <= tend && tend <= tfirstTx && tfirstTx <= tlastTx) {
		t.Errorf("%s: timestamps not monotonic: tin=%d tstart=%d tend=%d tfirst_tx=%d tlast_tx=%d",
			msg, tin, tstart, tend, tfirstTx, tlastTx)
	}
}

package transport

import "testing"

func TestSerialScannerErrorsOnMissingDevPath(t *testing.T) {
	s := &SerialScanner{devPath: "/nonexistent-for-test"}
	if _, err := s.Scan(); err == nil {
		t.Error("expected error scanning a nonexistent directory")
	}
}

func TestSerialScannerDefaultPath(t *testing.T) {
	s := NewSerialScanner()
	// /dev always exists on a Linux test runner; Scan should not error
	// even if it finds zero matching entries.
	if _, err := s.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
}

package protocol

import "github.com/westonvoglesonger/cortex/pkg/cortexerr"

// errShort builds the error returned when a buffer is too small to hold
// a payload's declared fields.
func errShort(what string) error {
	return cortexerr.New(cortexerr.KindBufferTooSmall, "decode "+what)
}

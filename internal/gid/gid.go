// Package gid extracts the id of the calling goroutine from the runtime
// stack trace header. It exists for exactly one purpose: letting workthread
// assert, cheaply, that Handle.IsCancelled is called from the worker
// goroutine it was invoked on, per the contract in workthread's package
// documentation.
//
// This is not a general-purpose goroutine-identity facility; Go goroutines
// have no public, stable identity, and nothing here should be used for
// scheduling or correctness decisions beyond the one assertion it backs.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current returns the id of the calling goroutine, or 0 if it could not be
// parsed from the runtime stack trace.
func Current() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]

	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}

	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

package cmn

import "fmt"

// Assert panics if cond is false. Used for invariants that must never be
// false given correct internal logic (§7 InvariantViolated is the
// recoverable counterpart exposed to callers; Assert is for conditions a
// caller cannot observe or correct, e.g. a negative semaphore count).
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

// AssertMsg panics with msg if cond is false.
func AssertMsg(cond bool, msg string) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: %s", msg))
	}
}

// AssertNoErr panics with err's message if err is non-nil. Reserved for
// errors that indicate a programming mistake rather than an operational
// failure (e.g. marshaling a struct this package controls).
func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("unexpected error: %v", err))
	}
}

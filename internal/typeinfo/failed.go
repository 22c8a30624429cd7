package typeinfo

// Failed implements the reference "failed" predicate of invariant 4: given
// a function's Flags and its raw return value, report whether that return
// represents a failure. Both the probe-side engine (§4.3.2) and the
// renderer's error filter (§4.5 step 2) must agree on this exact formula,
// so it lives here once rather than being reimplemented on each side.
func Failed(f Flags, ret int64) bool {
	if f.Has(CantFail) {
		return false
	}
	var failed bool
	if f.Has(NeedsSignExt) {
		failed = isErrValue32(ret)
	} else {
		failed = isErrValue(ret)
	}
	if f.Has(RetPtr) && ret == 0 {
		failed = true
	}
	return failed
}

// isErrValue implements §4.3.3's pointer/long predicate:
// (unsigned)x >= (unsigned)(-4095).
func isErrValue(x int64) bool {
	return uint64(x) >= uint64(int64(-4095))
}

// isErrValue32 implements §4.3.3's 32-bit predicate: the low 32 bits of x
// fall in [0xFFFFF001, 0xFFFFFFFF], preventing accidental sign-extension of
// pointer-like returns.
func isErrValue32(x int64) bool {
	lo := uint32(x)
	return lo >= 0xFFFFF001
}

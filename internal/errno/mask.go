package errno

import "github.com/bits-and-blooms/bitset"

// Mask is a fixed-size bitset over the errno space, used for the -x/-X
// allow/deny filters described in the data model.
type Mask struct {
	bits    *bitset.BitSet
	allOnes bool
}

// NewAllowMask returns the default allow_mask: all-ones (everything passes
// until the first -x narrows it).
func NewAllowMask() *Mask {
	return &Mask{bits: bitset.New(MaxErrno), allOnes: true}
}

// NewDenyMask returns the default deny_mask: all-zero.
func NewDenyMask() *Mask {
	return &Mask{bits: bitset.New(MaxErrno)}
}

// Set marks errno e as present in the mask. The first Set on an allow mask
// that started all-ones clears it first, per the data model: "first -x
// option clears it then sets the given bit".
func (m *Mask) Set(e int) {
	if e < 0 || e >= MaxErrno {
		return
	}
	if m.allOnes {
		m.bits.ClearAll()
		m.allOnes = false
	}
	m.bits.Set(uint(e))
}

// Test reports whether errno e is present in the mask.
func (m *Mask) Test(e int) bool {
	if m.allOnes {
		return true
	}
	if e < 0 || e >= MaxErrno {
		return false
	}
	return m.bits.Test(uint(e))
}

// IsDefault reports whether the mask is still at its zero-value default
// (all-ones for allow, all-zero for deny), meaning the filter step it
// belongs to can be skipped entirely.
func (m *Mask) IsDefault(wantAllOnes bool) bool {
	if wantAllOnes {
		return m.allOnes
	}
	return !m.allOnes && m.bits.None()
}

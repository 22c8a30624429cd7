// Package typeinfo derives the return-value discipline of a kernel function
// from its BTF type signature.
package typeinfo

// Flags is a bitset describing how to interpret a function's return value,
// per the data model's FuncInfo.flags.
type Flags uint8

const (
	// IsEntry marks a function as an entry point: its invocation begins a
	// traced logical stack even when nothing else on the path is an entry.
	IsEntry Flags = 1 << iota
	// CantFail marks a function whose return value is never a failure
	// indication (void, bool, or unsigned/narrow-signed integers).
	CantFail
	// NeedsSignExt marks a function whose 32-bit return must be sign-extended
	// before being compared against the errno band, either because there is
	// no type info at all or because the return is a signed 32-bit integer.
	NeedsSignExt
	// RetPtr marks a function returning a pointer: null is a failure, no
	// sign-extension applies.
	RetPtr
	// RetVoid marks a void-returning function.
	RetVoid
	// RetBool marks a bool-returning function.
	RetBool
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) String() string {
	var parts []string
	names := []struct {
		bit  Flags
		name string
	}{
		{IsEntry, "IS_ENTRY"},
		{CantFail, "CANT_FAIL"},
		{NeedsSignExt, "NEEDS_SIGN_EXT"},
		{RetPtr, "RET_PTR"},
		{RetVoid, "RET_VOID"},
		{RetBool, "RET_BOOL"},
	}
	for _, n := range names {
		if f.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "0"
	}
	s := parts[0]
	for _, p := range parts[1:] {
		s += "|" + p
	}
	return s
}

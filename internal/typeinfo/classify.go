package typeinfo

import "github.com/cilium/ebpf/btf"

// Classify derives a function's return-value Flags from its BTF type
// signature, per the data model's classification rules. A nil proto (no
// type info available for the function) conservatively assumes a 32-bit
// signed errno return.
func Classify(proto *btf.FuncProto) Flags {
	if proto == nil {
		return NeedsSignExt
	}
	return classifyReturn(proto.Return)
}

// classifyReturn walks modifiers and typedefs transparently until it finds a
// concrete base type, then applies the classification rules to that type.
func classifyReturn(t btf.Type) Flags {
	for i := 0; i < 64; i++ { // bounded: BTF type graphs are acyclic in practice
		switch v := t.(type) {
		case *btf.Typedef:
			t = v.Type
		case *btf.Volatile:
			t = v.Type
		case *btf.Const:
			t = v.Type
		case *btf.Restrict:
			t = v.Type
		case *btf.TypeTag:
			t = v.Type
		case *btf.Void:
			return CantFail | RetVoid
		case *btf.Pointer:
			return RetPtr
		case *btf.Int:
			return classifyInt(v)
		case nil:
			return NeedsSignExt
		default:
			// Struct/Union/Enum/Array/FuncProto returns: treat like any other
			// non-pointer, non-void value the kernel convention never uses for
			// error signalling directly.
			return CantFail
		}
	}
	return NeedsSignExt
}

func classifyInt(i *btf.Int) Flags {
	switch i.Encoding {
	case btf.Bool:
		return CantFail | RetBool
	case btf.Unsigned:
		return CantFail
	case btf.Signed:
		switch {
		case i.Size < 4:
			return CantFail
		case i.Size == 4:
			return NeedsSignExt
		default: // 8-byte signed: compared directly, no extra flags
			return 0
		}
	default: // Char and other encodings behave like narrow unsigned ints
		return CantFail
	}
}

package render

import (
	"regexp"

	"github.com/mna/retsnoop/internal/engine"
)

// NFrame is one native (raw address) stack frame, caller-first order (the
// order §4.5 step 4 builds kstack in, after reversing the leaf-first raw
// array).
type NFrame struct {
	Addr     uint64
	Symbol   string
	Base     uint64
	Filtered bool // artifact-filtered but kept visible, see --full-stacks
}

// buildKstack implements §4.5 step 4: reverse the raw leaf-first address
// array into caller-first order and resolve each address against the
// symbol table.
func (r *Renderer) buildKstack(rec engine.CallStack) []NFrame {
	out := make([]NFrame, rec.KstackSz)
	for i := 0; i < rec.KstackSz; i++ {
		addr := rec.Kstack[rec.KstackSz-1-i]
		out[i] = r.resolveNative(addr)
	}
	return out
}

func (r *Renderer) resolveNative(addr uint64) NFrame {
	if r.Symbols == nil {
		return NFrame{Addr: addr}
	}
	name, base, ok := r.Symbols.Resolve(addr)
	if !ok {
		return NFrame{Addr: addr}
	}
	return NFrame{Addr: addr, Symbol: name, Base: base}
}

var (
	trampolineRe = regexp.MustCompile(`^bpf_trampoline_\d+`)
	bpfProgRe    = regexp.MustCompile(`^bpf_prog_[0-9a-fA-F]+`)
)

// isArtifactSymbol reports whether sym is one of the instrumentation
// artifacts §4.5 step 5 names for removal: "bpf_trampoline_*",
// "bpf_prog_<hex>...", or "bpf_get_stack_raw_tp".
func isArtifactSymbol(sym string) bool {
	if sym == "bpf_get_stack_raw_tp" {
		return true
	}
	return trampolineRe.MatchString(sym) || bpfProgRe.MatchString(sym)
}

// postProcessKstack implements §4.5 step 5: remove instrumentation
// artifacts, special-casing the trampoline-sandwich pattern, or (under
// --full-stacks) mark them filtered-but-visible instead of dropping them.
func (r *Renderer) postProcessKstack(frames []NFrame) []NFrame {
	if r.Opts.FullStacks {
		tagged := make([]NFrame, len(frames))
		copy(tagged, frames)
		for i := range tagged {
			if isArtifactSymbol(tagged[i].Symbol) {
				tagged[i].Filtered = true
			}
		}
		return tagged
	}

	frames = r.foldTrampolineSandwiches(frames)
	out := frames[:0]
	for _, f := range frames {
		if isArtifactSymbol(f.Symbol) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// foldTrampolineSandwiches implements §4.5 step 5's trampoline-sandwich
// pattern: if frames i, i+1, i+2 have symbols X, TRAMP, X with TRAMP
// matching bpf_trampoline_<digits>... and addr[i]-sym[i].base ==
// FTRACE_OFFSET, drop i and i+1, keep only i+2.
func (r *Renderer) foldTrampolineSandwiches(frames []NFrame) []NFrame {
	out := make([]NFrame, 0, len(frames))
	i := 0
	for i < len(frames) {
		if i+2 < len(frames) &&
			frames[i].Symbol == frames[i+2].Symbol &&
			frames[i].Symbol != "" &&
			trampolineRe.MatchString(frames[i+1].Symbol) &&
			frames[i].Addr-frames[i].Base == ftraceOffset {
			out = append(out, frames[i+2])
			i += 3
			continue
		}
		out = append(out, frames[i])
		i++
	}
	return out
}

package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/retsnoop/internal/engine"
	"github.com/mna/retsnoop/internal/ksym"
)

type fakeSymTable struct{ syms map[uint64]ksym.Symbol }

func (f *fakeSymTable) Resolve(addr uint64) (string, uint64, bool) {
	s, ok := f.syms[addr]
	return s.Name, s.Addr, ok
}
func (f *fakeSymTable) ByName(name string) (uint64, bool) { return 0, false }
func (f *fakeSymTable) All() []ksym.Symbol                { return nil }

// S5 — trampoline-sandwich native stack collapses to two frames. Addresses
// mirror spec §8 scenario S5 exactly: leaf-first raw stack
// "bpf_map_alloc_percpu+0x3f, bpf_trampoline_42+0x6d, bpf_map_alloc_percpu+0x5,
// caller+0x10" folds to "bpf_map_alloc_percpu+0x3f, caller+0x10".
func TestTrampolineSandwichFilter(t *testing.T) {
	r := &Renderer{
		Symbols: &fakeSymTable{syms: map[uint64]ksym.Symbol{
			0x103f: {Name: "bpf_map_alloc_percpu", Addr: 0x1000},
			0x106d: {Name: "bpf_trampoline_42", Addr: 0x1000},
			0x1005: {Name: "bpf_map_alloc_percpu", Addr: 0x1000},
			0x2010: {Name: "caller", Addr: 0x2000},
		}},
	}
	rec := engine.CallStack{
		KstackSz: 4,
		// leaf-first raw order; buildKstack reverses it to caller-first.
		Kstack: [engine.MaxKstackDepth]uint64{0x103f, 0x106d, 0x1005, 0x2010},
	}
	kstack := r.buildKstack(rec)
	require.Len(t, kstack, 4)
	assert.Equal(t, uint64(0x5), kstack[1].Addr-kstack[1].Base, "addr[i]-base == FTRACE_OFFSET per the sandwich precondition")

	filtered := r.postProcessKstack(kstack)
	require.Len(t, filtered, 2)
	assert.Equal(t, "caller", filtered[0].Symbol)
	assert.Equal(t, "bpf_map_alloc_percpu", filtered[1].Symbol)
	assert.Equal(t, uint64(0x103f), filtered[1].Addr, "the surviving X frame is the one at +0x3f, not +0x5")
}

func TestFullStacksMarksFilteredButKeepsFrames(t *testing.T) {
	r := &Renderer{Opts: Options{FullStacks: true}}
	frames := []NFrame{
		{Addr: 0x100, Symbol: "bpf_trampoline_7"},
		{Addr: 0x200, Symbol: "real_fn"},
	}
	out := r.postProcessKstack(frames)
	require.Len(t, out, 2)
	assert.True(t, out[0].Filtered)
	assert.False(t, out[1].Filtered)
}

func TestMergeStacksInvariant8(t *testing.T) {
	fstack := []FFrame{{Name: "A"}, {Name: "B"}}
	kstack := []NFrame{{Symbol: "native_only"}, {Symbol: "A"}, {Symbol: "B"}, {Symbol: "trailing"}}
	lines := mergeStacks(fstack, kstack)
	// 1 unmatched native before A, 2 matched pairs, 1 trailing native-only.
	assert.Len(t, lines, 4)
}

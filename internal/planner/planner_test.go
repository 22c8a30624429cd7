package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/retsnoop/internal/backend"
	"github.com/mna/retsnoop/internal/globset"
	"github.com/mna/retsnoop/internal/ksym"
	"github.com/mna/retsnoop/internal/planner"
	"github.com/mna/retsnoop/internal/typeinfo"
)

type fakeSymTable struct{ syms []ksym.Symbol }

func (f *fakeSymTable) Resolve(addr uint64) (string, uint64, bool) { return "", 0, false }
func (f *fakeSymTable) ByName(name string) (uint64, bool) {
	for _, s := range f.syms {
		if s.Name == name {
			return s.Addr, true
		}
	}
	return 0, false
}
func (f *fakeSymTable) All() []ksym.Symbol { return f.syms }

type fakeBackend struct{ rejectNames map[string]bool }

func (f *fakeBackend) Attachable(candidates []backend.Candidate) ([]backend.Candidate, map[string]string) {
	rejected := map[string]string{}
	var ok []backend.Candidate
	for _, c := range candidates {
		if f.rejectNames[c.Name] {
			rejected[c.Name] = "blacklisted"
			continue
		}
		ok = append(ok, c)
	}
	return ok, rejected
}
func (f *fakeBackend) Attach(mode backend.Mode, funcs []backend.Candidate) (backend.Result, error) {
	return backend.Result{Attached: len(funcs)}, nil
}
func (f *fakeBackend) Detach() error { return nil }
func (f *fakeBackend) NumCPU() int   { return 1 }

func mustSet(t *testing.T, tokens []string) *globset.Set {
	t.Helper()
	s, err := globset.Compile(tokens, nil)
	require.NoError(t, err)
	return s
}

func TestBuildBasic(t *testing.T) {
	syms := &fakeSymTable{syms: []ksym.Symbol{
		{Name: "sys_bpf", Addr: 0x1000},
		{Name: "bpf_map_alloc", Addr: 0x1100},
		{Name: "bpf_trampoline_42", Addr: 0x1200},
		{Name: "unrelated_fn", Addr: 0x2000},
	}}
	p := planner.Plan{
		Entry:   mustSet(t, []string{"sys_bpf"}),
		Allow:   mustSet(t, []string{"bpf_*"}),
		Deny:    mustSet(t, []string{"bpf_trampoline_*"}),
		Symbols: syms,
		Backend: &fakeBackend{rejectNames: map[string]bool{}},
	}
	table, err := planner.Build(p)
	require.NoError(t, err)
	require.Len(t, table, 2, "sys_bpf and bpf_map_alloc, trampoline denied, unrelated_fn not allowed")

	names := map[string]bool{}
	for _, fi := range table {
		names[fi.Name] = true
		if fi.Name == "sys_bpf" {
			assert.True(t, fi.Flags.Has(typeinfo.IsEntry))
		}
	}
	assert.True(t, names["sys_bpf"])
	assert.True(t, names["bpf_map_alloc"])
	assert.False(t, names["bpf_trampoline_42"])
}

func TestBuildFailsWhenEntryGlobUnmatched(t *testing.T) {
	syms := &fakeSymTable{syms: []ksym.Symbol{{Name: "bpf_map_alloc", Addr: 0x1000}}}
	p := planner.Plan{
		Entry:   mustSet(t, []string{"no_such_entry"}),
		Allow:   mustSet(t, []string{"bpf_*"}),
		Deny:    mustSet(t, nil),
		Symbols: syms,
		Backend: &fakeBackend{},
	}
	_, err := planner.Build(p)
	assert.Error(t, err)
}

func TestBuildFailsWhenOnlySomeEntryGlobsMatch(t *testing.T) {
	syms := &fakeSymTable{syms: []ksym.Symbol{{Name: "foo_enter", Addr: 0x1000}}}
	p := planner.Plan{
		Entry:   mustSet(t, []string{"foo*", "doesnotexist*"}),
		Allow:   mustSet(t, []string{"foo*"}),
		Deny:    mustSet(t, nil),
		Symbols: syms,
		Backend: &fakeBackend{},
	}
	_, err := planner.Build(p)
	assert.Error(t, err, "doesnotexist* matched nothing even though foo* did")
}

func TestBuildDropsBackendRejected(t *testing.T) {
	syms := &fakeSymTable{syms: []ksym.Symbol{
		{Name: "sys_bpf", Addr: 0x1000},
		{Name: "bpf_optimized_out", Addr: 0x1100},
	}}
	p := planner.Plan{
		Entry:   mustSet(t, []string{"sys_bpf"}),
		Allow:   mustSet(t, []string{"*"}),
		Deny:    mustSet(t, nil),
		Symbols: syms,
		Backend: &fakeBackend{rejectNames: map[string]bool{"bpf_optimized_out": true}},
	}
	table, err := planner.Build(p)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, "sys_bpf", table[0].Name)
}

func TestBuildDeterministicOrder(t *testing.T) {
	syms := &fakeSymTable{syms: []ksym.Symbol{
		{Name: "zeta", Addr: 0x3000},
		{Name: "alpha", Addr: 0x1000},
		{Name: "mid", Addr: 0x2000},
	}}
	p := planner.Plan{
		Entry:   mustSet(t, []string{"alpha"}),
		Allow:   mustSet(t, []string{"*"}),
		Deny:    mustSet(t, nil),
		Symbols: syms,
		Backend: &fakeBackend{},
	}
	table, err := planner.Build(p)
	require.NoError(t, err)
	require.Len(t, table, 3)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{table[0].Name, table[1].Name, table[2].Name})
}

// Package ksym is the narrow collaborator interface for the kernel symbol
// table loader that spec §1 puts out of scope: "kernel-symbol table loader
// (returns addr -> {name, base})". It provides that interface plus a
// /proc/kallsyms-backed implementation used outside of tests.
package ksym

import (
	"bufio"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gravitational/trace"
)

// Symbol is one entry of the kernel symbol table: a named function (or
// object) starting at Addr.
type Symbol struct {
	Name string
	Addr uint64
}

// Table is the address-sorted symbol table collaborator. Resolve finds the
// symbol whose range contains addr; base is that symbol's entry address, so
// callers can compute addr-base as an offset.
type Table interface {
	// Resolve returns the symbol covering addr and its base address.
	Resolve(addr uint64) (name string, base uint64, ok bool)
	// ByName returns the address of a named symbol, for planner candidate
	// resolution.
	ByName(name string) (addr uint64, ok bool)
	// All returns every known symbol, address-sorted, e.g. for the planner's
	// allow/deny glob matching pass.
	All() []Symbol
}

// KallsymsTable is a Table backed by /proc/kallsyms.
type KallsymsTable struct {
	syms   []Symbol // address-sorted
	byName map[string]int
}

// Load parses /proc/kallsyms (or path, for tests) into a KallsymsTable. Only
// text symbols (types 't'/'T') and weak symbols (types 'w'/'W') are kept.
func Load(path string) (*KallsymsTable, error) {
	if path == "" {
		path = "/proc/kallsyms"
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, trace.Wrap(err, "open kernel symbol table")
	}
	defer f.Close()

	t := &KallsymsTable{byName: make(map[string]int)}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		typ := fields[1]
		if typ != "t" && typ != "T" && typ != "w" && typ != "W" {
			continue
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			continue
		}
		name := fields[2]
		if idx := strings.IndexByte(name, '\t'); idx >= 0 {
			name = name[:idx]
		}
		t.syms = append(t.syms, Symbol{Name: name, Addr: addr})
	}
	if err := sc.Err(); err != nil {
		return nil, trace.Wrap(err, "read kernel symbol table")
	}
	sort.Slice(t.syms, func(i, j int) bool { return t.syms[i].Addr < t.syms[j].Addr })
	for i, s := range t.syms {
		// keep the first occurrence; duplicate names (ambiguous multi-instance
		// symbols, per §4.1 step 3) are resolved to their lowest address here.
		// All still returns every instance; the planner only collapses
		// entries that share both name and address.
		if _, ok := t.byName[s.Name]; !ok {
			t.byName[s.Name] = i
		}
	}
	return t, nil
}

// Resolve implements Table by binary-searching the address-sorted table for
// the last symbol at or before addr.
func (t *KallsymsTable) Resolve(addr uint64) (string, uint64, bool) {
	if len(t.syms) == 0 {
		return "", 0, false
	}
	i := sort.Search(len(t.syms), func(i int) bool { return t.syms[i].Addr > addr })
	if i == 0 {
		return "", 0, false
	}
	s := t.syms[i-1]
	return s.Name, s.Addr, true
}

// ByName implements Table.
func (t *KallsymsTable) ByName(name string) (uint64, bool) {
	i, ok := t.byName[name]
	if !ok {
		return 0, false
	}
	return t.syms[i].Addr, true
}

// All implements Table.
func (t *KallsymsTable) All() []Symbol {
	return append([]Symbol(nil), t.syms...)
}

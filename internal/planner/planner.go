// Package planner implements the attachment planner of §4.1: it expands
// entry/allow/deny globs, intersects them with the live kernel function
// universe, asks the backend which candidates are actually attachable, and
// produces the dense, ordered function table the rest of the tool runs on.
package planner

import (
	"fmt"
	"strings"

	"github.com/cilium/ebpf/btf"
	"github.com/gravitational/trace"
	"golang.org/x/exp/slices"

	"github.com/mna/retsnoop/internal/backend"
	"github.com/mna/retsnoop/internal/functable"
	"github.com/mna/retsnoop/internal/globset"
	"github.com/mna/retsnoop/internal/ksym"
	"github.com/mna/retsnoop/internal/typeinfo"
)

// Error is the concrete type behind the PlanError taxonomy entry of §7: "no
// function matches an entry glob; candidate count exceeds cap".
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

// TypeResolver supplies BTF function prototypes for the return-type
// classifier; nil means "no type info", which §3 maps to NeedsSignExt.
type TypeResolver interface {
	FuncProto(name string) *btf.FuncProto
}

// Plan holds the compiled globs and resolved universe the planner expands
// into a function table.
type Plan struct {
	Entry *globset.Set
	Allow *globset.Set
	Deny  *globset.Set

	Symbols  ksym.Table
	Types    TypeResolver // may be nil
	Backend  backend.Backend
	MaxFuncs int // backend cap; 0 means use functable's 64k ceiling
}

const maxFuncTableSize = 1 << 16 // functable.FuncID data-model ceiling, §3

// Build runs the six steps of §4.1 and returns the resulting immutable
// function table (entry functions carry typeinfo.IsEntry in their Flags),
// or an error wrapping either a ConfigError-shaped validation failure or a
// PlanError.
func Build(p Plan) (functable.Table, error) {
	maxN := p.MaxFuncs
	if maxN <= 0 || maxN > maxFuncTableSize {
		maxN = maxFuncTableSize
	}

	// Step 1: union entry globs into allow (entries are implicitly allowed).
	allowPatterns := append(append([]string(nil), p.Allow.Patterns()...), p.Entry.Patterns()...)
	allow, err := globset.Compile(allowPatterns, nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	// Step 2: candidate set = allow-matched minus deny-matched.
	var candidates []backend.Candidate
	for _, sym := range p.Symbols.All() {
		if !allow.Match(sym.Name) {
			continue
		}
		if p.Deny != nil && p.Deny.Match(sym.Name) {
			continue
		}
		candidates = append(candidates, backend.Candidate{Name: sym.Name, EntryAddr: sym.Addr})
	}

	// Step 3: drop functions the backend cannot attach.
	ok, rejected := p.Backend.Attachable(candidates)
	_ = rejected // surfaced via logging by the caller; not fatal per §4.1 step 3

	// Step 4: deterministic dense ID order: by name, tie-broken by address.
	slices.SortFunc(ok, func(a, b backend.Candidate) int {
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		switch {
		case a.EntryAddr < b.EntryAddr:
			return -1
		case a.EntryAddr > b.EntryAddr:
			return 1
		default:
			return 0
		}
	})
	// Ambiguous multi-instance symbols (same name, same address reported
	// twice by the symbol universe) collapse to one candidate.
	ok = slices.CompactFunc(ok, func(a, b backend.Candidate) bool {
		return a.Name == b.Name && a.EntryAddr == b.EntryAddr
	})

	if len(ok) > maxN {
		return nil, trace.Wrap(&Error{Msg: "candidate count exceeds backend cap"})
	}

	table := make(functable.Table, len(ok))
	for i, c := range ok {
		var proto *btf.FuncProto
		if p.Types != nil {
			proto = p.Types.FuncProto(c.Name)
		}
		flags := typeinfo.Classify(proto)
		if p.Entry.Match(c.Name) {
			flags |= typeinfo.IsEntry
		}
		table[i] = functable.FuncInfo{
			Name:      c.Name,
			EntryAddr: c.EntryAddr,
			Flags:     flags,
		}
	}
	fillBodySizes(table)

	// Step 6 (first half): every entry-glob must match >=1 function.
	if err := validateEntryCoverage(p.Entry, table); err != nil {
		return nil, err
	}

	return table, nil
}

// fillBodySizes derives each function's body size from the gap to the next
// function's entry address in the address-sorted symbol table (the
// standard "distance to next symbol" approximation used when no more
// precise BTF size is available).
func fillBodySizes(table functable.Table) {
	byAddr := append(functable.Table(nil), table...)
	slices.SortFunc(byAddr, func(a, b functable.FuncInfo) int {
		switch {
		case a.EntryAddr < b.EntryAddr:
			return -1
		case a.EntryAddr > b.EntryAddr:
			return 1
		default:
			return 0
		}
	})
	next := make(map[uint64]uint64, len(byAddr))
	for i := 0; i+1 < len(byAddr); i++ {
		next[byAddr[i].EntryAddr] = byAddr[i+1].EntryAddr
	}
	for i := range table {
		if end, ok := next[table[i].EntryAddr]; ok && end > table[i].EntryAddr {
			table[i].BodySize = end - table[i].EntryAddr
		} else {
			table[i].BodySize = 0
		}
	}
}

// validateEntryCoverage implements §4.1 step 6's entry-glob validation:
// "every entry-glob must match >= 1 function in the final table, else fail
// the run" — every pattern individually, not merely "some entry glob
// matched something".
func validateEntryCoverage(entry *globset.Set, table functable.Table) error {
	if entry.Empty() {
		return trace.Wrap(&Error{Msg: "no entry glob supplied"})
	}
	names := make([]string, len(table))
	for i, fi := range table {
		names[i] = fi.Name
	}
	if unmatched := entry.Unmatched(names); len(unmatched) > 0 {
		return trace.Wrap(&Error{Msg: fmt.Sprintf("entry glob(s) matched no function: %s", strings.Join(unmatched, ", "))})
	}
	return nil
}

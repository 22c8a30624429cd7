// Package functable holds the function table built once by the attachment
// planner and consulted read-only by every other component afterwards.
package functable

import "github.com/mna/retsnoop/internal/typeinfo"

// FuncID is a dense, stable index into a Table, assigned 0..N-1 by the
// planner. The data model caps N at 64k.
type FuncID uint32

// FuncInfo is the immutable per-function record produced by the planner.
type FuncInfo struct {
	Name      string
	EntryAddr uint64
	BodySize  uint64
	Flags     typeinfo.Flags
}

// Table is the function table, indexed by FuncID, shared by reference and
// never mutated after the planner returns it.
type Table []FuncInfo

// Flags returns the flags for id, or 0 if id is out of range.
func (t Table) Flags(id FuncID) typeinfo.Flags {
	if int(id) >= len(t) {
		return 0
	}
	return t[id].Flags
}

// Lookup returns the FuncInfo for id and whether id is valid.
func (t Table) Lookup(id FuncID) (FuncInfo, bool) {
	if int(id) >= len(t) {
		return FuncInfo{}, false
	}
	return t[id], true
}

// ByEntry returns the first FuncInfo whose Name equals name, and whether one
// was found.
func (t Table) ByEntry(name string) (FuncInfo, bool) {
	for _, fi := range t {
		if fi.Name == name {
			return fi, true
		}
	}
	return FuncInfo{}, false
}

package render

import (
	"fmt"

	"github.com/mna/retsnoop/internal/engine"
	"github.com/mna/retsnoop/internal/lbr"
)

// printLBR implements §4.5 step 9: trim the branch ring to the point
// nearest the current leaf failing function and render from there, or
// render the full ring with a diagnostic if no branch overlaps it, per
// Design Note's "no overlap -> render all and warn".
func (r *Renderer) printLBR(rec engine.CallStack) {
	leaf, ok := r.Funcs.Lookup(rec.FuncIDs[rec.MaxDepth-1])
	if !ok {
		return
	}
	branches := rec.LBRs[:rec.LBRSz]
	entries := make([]engine.LBREntry, len(branches))
	copy(entries, branches)

	from, found := lbr.Trim(entries, leaf.EntryAddr, leaf.BodySize)
	if !found {
		fmt.Fprintln(r.Out, "  lbr: no branch overlaps the failing function, rendering full ring")
		from = 0
	}
	for i := from; i < len(entries); i++ {
		fmt.Fprintf(r.Out, "  lbr: %#x -> %#x\n", entries[i].From, entries[i].To)
	}
}

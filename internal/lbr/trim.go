package lbr

import "github.com/mna/retsnoop/internal/engine"

// Trim implements §4.5 step 9 / the LBR rendering trim: scanning from the
// newest branch backwards, it locates the first branch whose `from` or `to`
// falls within [entryAddr, entryAddr+bodySize) of the failing leaf function,
// and returns the index to render from (inclusive). If no branch overlaps,
// found is false and the full ring should be rendered with a diagnostic,
// per Design Note on the source's ambiguous "no overlap" sentinel.
func Trim(branches []engine.LBREntry, entryAddr, bodySize uint64) (from int, found bool) {
	end := entryAddr + bodySize
	for i, b := range branches {
		if overlaps(b.From, entryAddr, end) || overlaps(b.To, entryAddr, end) {
			return i, true
		}
	}
	return 0, false
}

func overlaps(addr, start, end uint64) bool {
	return addr >= start && addr < end
}

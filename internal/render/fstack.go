package render

import (
	"github.com/mna/retsnoop/internal/engine"
	"github.com/mna/retsnoop/internal/functable"
	"github.com/mna/retsnoop/internal/typeinfo"
)

// FFrame is one logical (function-table) frame ready to print, leaf-first.
type FFrame struct {
	ID       functable.FuncID
	Name     string
	Res      int64
	Lat      uint64
	Failed   bool
	Stitched bool
}

// buildFstack implements §4.5 step 3: build logical frames in leaf-first
// order from the surviving indices, marking stitched frames with a visual
// marker.
func (r *Renderer) buildFstack(rec engine.CallStack) []FFrame {
	var out []FFrame
	for i := rec.MaxDepth - 1; i >= 0; i-- {
		out = append(out, r.frameOf(rec.FuncIDs[i], rec.FuncRes[i], rec.FuncLat[i], false))
	}
	if rec.HasStitch() {
		for i := rec.SavedMaxDepth - 1; i >= rec.SavedDepth-1; i-- {
			if i < 0 || i >= len(rec.SavedIDs) {
				continue
			}
			out = append(out, r.frameOf(rec.SavedIDs[i], rec.SavedRes[i], rec.SavedLat[i], true))
		}
	}
	return out
}

func (r *Renderer) frameOf(id functable.FuncID, res int64, lat uint64, stitched bool) FFrame {
	fi, _ := r.Funcs.Lookup(id)
	return FFrame{
		ID:       id,
		Name:     fi.Name,
		Res:      res,
		Lat:      lat,
		Failed:   typeinfo.Failed(fi.Flags, res),
		Stitched: stitched,
	}
}

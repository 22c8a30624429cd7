package render

import (
	"github.com/mna/retsnoop/internal/engine"
	"github.com/mna/retsnoop/internal/functable"
	"github.com/mna/retsnoop/internal/typeinfo"
)

// reportGate implements §4.5 step 1: "emit successes only if configured;
// discard successes otherwise. Discard if total_latency < longer_than_ms."
func (r *Renderer) reportGate(rec engine.CallStack) bool {
	if !rec.IsErr && !r.Opts.ReportSucc {
		return false
	}
	if totalLatency(rec) < r.Opts.LongerThan {
		return false
	}
	if !r.processFilterPasses(rec) {
		return false
	}
	return true
}

// processFilterPasses applies the -p/-P/-n/-N process identity filters
// (supplemented from §6; see Options' comment).
func (r *Renderer) processFilterPasses(rec engine.CallStack) bool {
	if len(r.Opts.DenyPIDs) > 0 && r.Opts.DenyPIDs[rec.PID] {
		return false
	}
	if len(r.Opts.AllowPIDs) > 0 && !r.Opts.AllowPIDs[rec.PID] {
		return false
	}
	comm := commString(rec.Comm)
	if len(r.Opts.DenyComms) > 0 && r.Opts.DenyComms[comm] {
		return false
	}
	if len(r.Opts.AllowComms) > 0 && !r.Opts.AllowComms[comm] {
		return false
	}
	return true
}

// errorFilter implements §4.5 step 2: for each frame whose flags allow a
// meaningful error value, compare against the allow/deny masks. Any
// deny-match rejects immediately; lack of any allow-match (when the allow
// mask is non-default) also rejects. Stitched sibling frames are included
// in the scan iff the adjacency condition holds (invariant 7).
func (r *Renderer) errorFilter(rec engine.CallStack) bool {
	allowDefault := r.Allow == nil || r.Allow.IsDefault(true)
	denyDefault := r.Deny == nil || r.Deny.IsDefault(false)
	if allowDefault && denyDefault {
		return true
	}

	anyAllow := false
	scan := func(id functable.FuncID, res int64) (reject bool) {
		flags := r.Funcs.Flags(id)
		e, ok := errnoOf(flags, res)
		if !ok {
			return false
		}
		if r.Deny != nil && !denyDefault && r.Deny.Test(e) {
			return true // deny-match: reject immediately
		}
		if r.Allow == nil || r.Allow.Test(e) {
			anyAllow = true
		}
		return false
	}

	for i := 0; i < rec.MaxDepth; i++ {
		if scan(rec.FuncIDs[i], rec.FuncRes[i]) {
			return false
		}
	}
	if rec.HasStitch() {
		for i := rec.SavedDepth - 1; i < rec.SavedMaxDepth; i++ {
			if i < 0 || i >= len(rec.SavedIDs) {
				continue
			}
			if scan(rec.SavedIDs[i], rec.SavedRes[i]) {
				return false
			}
		}
	}

	if !allowDefault && !anyAllow {
		return false
	}
	return true
}

// errnoOf extracts the meaningful error number for a frame, applying
// NEEDS_SIGN_EXT first per §4.5 step 2, or ok==false if the frame's flags
// don't carry a comparable error value (CANT_FAIL, or a non-failing
// pointer/void/bool return).
func errnoOf(flags typeinfo.Flags, res int64) (int, bool) {
	if flags.Has(typeinfo.CantFail) {
		return 0, false
	}
	if flags.Has(typeinfo.RetPtr) {
		return 0, false // null failure has no comparable errno value
	}
	var v int64
	if flags.Has(typeinfo.NeedsSignExt) {
		v = int64(int32(res))
	} else {
		v = res
	}
	if v >= 0 {
		return 0, false
	}
	return int(-v), true
}

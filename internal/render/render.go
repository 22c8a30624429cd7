// Package render implements the stack filter & renderer of §4.5: it
// applies the report gate and error-mask filters, reconciles the logical
// function stack with the raw native address stack, symbolizes, and prints
// one annotated record per surviving CallStack.
package render

import (
	"fmt"
	"io"
	"time"

	"github.com/mna/retsnoop/internal/backend"
	"github.com/mna/retsnoop/internal/engine"
	"github.com/mna/retsnoop/internal/errno"
	"github.com/mna/retsnoop/internal/functable"
	"github.com/mna/retsnoop/internal/ksym"
	"github.com/mna/retsnoop/internal/symbolize"
)

// Options configures the renderer from the resolved Config, kept narrow
// (render doesn't import internal/config; internal/maincmd's renderOptions
// translates a Config into these fields).
type Options struct {
	ReportSucc  bool // -S
	ReportIntr  bool // -A
	LongerThan  time.Duration
	FullStacks  bool // --full-stacks
	Symbolize   bool
	Inlines     bool
	ClockOffset time.Duration

	// Process filters (§6 -p/-P/-n/-N), supplemented onto the report gate:
	// a per-record identity check belongs naturally alongside the other
	// gate checks in step 1.
	AllowPIDs  map[uint32]bool // empty means "no restriction"
	DenyPIDs   map[uint32]bool
	AllowComms map[string]bool
	DenyComms  map[string]bool
}

// Renderer holds the immutable collaborators the pipeline consults for
// every record: the function table, error masks, symbol table and DWARF
// resolver. None of these are mutated once a trace run starts, per §5.
type Renderer struct {
	Funcs   functable.Table
	Allow   *errno.Mask
	Deny    *errno.Mask
	Symbols ksym.Table
	DWARF   *symbolize.Resolver // nil disables source-line symbolization
	Opts    Options

	Out io.Writer
}

// Process runs one dequeued CallStack record through the full §4.5
// pipeline and writes the rendered text to r.Out, or returns ok==false if
// the record was filtered out at any gate. A record with Depth > 0 is a
// -A intermediate snapshot (the engine's periodic live-frame flush, see
// internal/engine.EnableIntermediateFlush) rather than a completed,
// depth->0 trace, and is routed to processIntermediate instead.
func (r *Renderer) Process(rec engine.CallStack) (ok bool, err error) {
	if rec.Depth > 0 {
		return r.processIntermediate(rec)
	}
	if !r.reportGate(rec) {
		return false, nil
	}
	if !r.errorFilter(rec) {
		return false, nil
	}

	fstack := r.buildFstack(rec)
	kstack := r.buildKstack(rec)
	kstack = r.postProcessKstack(kstack)
	merged := mergeStacks(fstack, kstack)

	if err := r.printRecord(rec, merged); err != nil {
		return false, err
	}
	if rec.LBRSz > 0 {
		r.printLBR(rec)
	}
	return true, nil
}

// processIntermediate implements the -A supplement's renderer half: the
// record hasn't completed (Depth > 0, so FuncLat holds start timestamps,
// not durations), so none of the final-record gates apply — no success/
// latency filter, no error-mask filter, no kstack/LBR reconciliation —
// only the process identity filters and the -A opt-in itself.
func (r *Renderer) processIntermediate(rec engine.CallStack) (bool, error) {
	if !r.Opts.ReportIntr {
		return false, nil
	}
	if !r.processFilterPasses(rec) {
		return false, nil
	}
	if err := r.printIntermediate(rec); err != nil {
		return false, err
	}
	return true, nil
}

// totalLatency sums the per-frame durations of the frozen failing path
// (indices [0, MaxDepth)), which is the only portion of the record with a
// valid duration once depth has returned to 0.
func totalLatency(rec engine.CallStack) time.Duration {
	var total uint64
	for i := 0; i < rec.MaxDepth; i++ {
		total += rec.FuncLat[i]
	}
	return time.Duration(total)
}

func formatHeader(rec engine.CallStack, offset time.Duration) string {
	wall := time.Unix(0, int64(rec.EmitTS)+int64(offset))
	comm := commString(rec.Comm)
	return fmt.Sprintf("%s %d %d (%s):", wall.Format("15:04:05.000"), rec.PID, rec.TGID, comm)
}

func commString(comm [16]byte) string {
	n := 0
	for n < len(comm) && comm[n] != 0 {
		n++
	}
	return string(comm[:n])
}

// ftraceOffset re-exports backend.FtraceOffset under the render package's
// own name so callers reading this package don't need to know the probe
// mechanism owns the constant.
const ftraceOffset = backend.FtraceOffset

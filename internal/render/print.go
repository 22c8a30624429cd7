package render

import (
	"fmt"
	"time"

	"github.com/mna/retsnoop/internal/engine"
	"github.com/mna/retsnoop/internal/errno"
	"github.com/mna/retsnoop/internal/symbolize"
)

// printRecord implements §4.5 steps 7-8: symbolize each printed kstack
// frame (resolving at addr-FTRACE_OFFSET when the address is a return-probe
// observation point) and print the header plus one frame line per merged
// entry. Only the first source location of a frame is printed; inlined
// frames are not rendered.
func (r *Renderer) printRecord(rec engine.CallStack, lines []mergedLine) error {
	if _, err := fmt.Fprintln(r.Out, formatHeader(rec, r.Opts.ClockOffset)); err != nil {
		return err
	}
	for _, ln := range lines {
		if err := r.printLine(ln); err != nil {
			return err
		}
	}
	return nil
}

// printIntermediate renders a -A live snapshot: the top-level entry hasn't
// returned yet, so there is no error classification or total latency to
// report, only the currently-live call path and when each frame was
// entered.
func (r *Renderer) printIntermediate(rec engine.CallStack) error {
	since := time.Unix(0, int64(rec.FuncLat[0])+int64(r.Opts.ClockOffset))
	header := fmt.Sprintf("%s %d %d (%s) [intermediate]:",
		since.Format("15:04:05.000"), rec.PID, rec.TGID, commString(rec.Comm))
	if _, err := fmt.Fprintln(r.Out, header); err != nil {
		return err
	}
	for i := 0; i < rec.Depth; i++ {
		fi, _ := r.Funcs.Lookup(rec.FuncIDs[i])
		started := time.Unix(0, int64(rec.FuncLat[i])+int64(r.Opts.ClockOffset))
		if _, err := fmt.Fprintf(r.Out, "  %-24s since %s\n", fi.Name, started.Format("15:04:05.000")); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) printLine(ln mergedLine) error {
	switch {
	case ln.F != nil && ln.N != nil:
		return r.printMatched(*ln.F, *ln.N)
	case ln.F != nil:
		return r.printLogicalOnly(*ln.F)
	default:
		return r.printNativeOnly(*ln.N)
	}
}

func (r *Renderer) printMatched(f FFrame, n NFrame) error {
	errTag := r.errTag(f)
	lat := time.Duration(f.Lat)
	marker := ""
	if f.Stitched {
		marker = "~"
	}
	loc := r.symbolLocation(n)
	_, err := fmt.Fprintf(r.Out, "  %s%-8s %-12s %s%s\n", marker, lat, errTag, n.Symbol, loc)
	return err
}

func (r *Renderer) printLogicalOnly(f FFrame) error {
	errTag := r.errTag(f)
	lat := time.Duration(f.Lat)
	marker := ""
	if f.Stitched {
		marker = "~"
	}
	_, err := fmt.Fprintf(r.Out, "  %s%-8s %-12s %s [logical-only]\n", marker, lat, errTag, f.Name)
	return err
}

func (r *Renderer) printNativeOnly(n NFrame) error {
	loc := r.symbolLocation(n)
	tag := ""
	if n.Filtered {
		tag = " [filtered]"
	}
	_, err := fmt.Fprintf(r.Out, "  %#x %s%s%s\n", n.Addr, n.Symbol, loc, tag)
	return err
}

func (r *Renderer) errTag(f FFrame) string {
	if !f.Failed {
		return ""
	}
	// RET_PTR null failures have no errno-shaped representation; the
	// frame's own logical classification already recorded Failed=true.
	if f.Res == 0 {
		return "[NULL]"
	}
	return errno.FormatSigned(f.Res)
}

// symbolLocation implements §4.5 step 7's symbolization and
// FTRACE_OFFSET-adjusted resolution, plus source-path shortening. Returns
// "+OFF  (source:line)", or only "+OFF" when symbolization is disabled
// (-sn), no resolver is configured, or the address has no line entry.
func (r *Renderer) symbolLocation(n NFrame) string {
	if !r.Opts.Symbolize || r.DWARF == nil {
		return fmt.Sprintf("+%#x", n.Addr-n.Base)
	}
	addr := n.Addr
	if n.Base != 0 && addr-n.Base == ftraceOffset {
		addr -= ftraceOffset
	}
	lines, ok := r.DWARF.Resolve(addr)
	if !ok || len(lines) == 0 {
		return fmt.Sprintf("+%#x", n.Addr-n.Base)
	}
	leaf := lines[0]
	return fmt.Sprintf("+%#x  (%s:%d)", n.Addr-n.Base, symbolize.ShortenPath(leaf.File), leaf.Line)
}

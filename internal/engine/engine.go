package engine

import (
	"github.com/mna/retsnoop/internal/functable"
	"github.com/mna/retsnoop/internal/typeinfo"
)

// Clock supplies the probe-side monotonic timestamp. It must never block or
// allocate; on the real backend this reads a per-CPU hardware counter.
type Clock interface {
	Now() uint64
}

// TaskIdentity supplies the process identity of the task currently running
// on cpu, read once per top-level entry.
type TaskIdentity interface {
	CurrentTask(cpu int) (pid, tgid uint32, comm [16]byte)
}

// KstackCapturer snapshots the native kernel return-address stack for cpu
// into out (leaf first) and returns how many entries were written.
type KstackCapturer interface {
	CaptureKernelStack(cpu int, out []uint64) int
}

// BranchCapturer snapshots the most recent hardware branch samples for cpu.
// A nil BranchCapturer means LBR capture is disabled.
type BranchCapturer interface {
	CaptureBranchStack(cpu int, out []LBREntry) int
}

// Emitter publishes a CallStack to the user side: a completed top-level
// record (a copy taken at depth->0) or, with EnableIntermediateFlush, a copy
// of the still-live stack (Depth > 0). Implementations must not retain
// cpu-specific state, only the record itself.
type Emitter interface {
	Emit(cpu int, rec CallStack)
}

// Engine is the probe-side stack engine: one CallStack per logical CPU,
// driven entirely by OnEntry/OnExit calls keyed by (cpu, func_id).
type Engine struct {
	funcs  functable.Table
	stacks []CallStack

	clock  Clock
	ident  TaskIdentity
	kstack KstackCapturer
	lbr    BranchCapturer // nil disables LBR
	out    Emitter

	intrInterval uint64   // ns; 0 disables the -A periodic live-frame flush
	lastFlush    []uint64 // per-cpu timestamp of the last intermediate emission
}

// New builds an Engine over numCPU logical CPUs. lbr may be nil to disable
// branch-stack capture, matching "disabled silently on kernels lacking the
// capability" (§4.6).
func New(funcs functable.Table, numCPU int, clock Clock, ident TaskIdentity, kstack KstackCapturer, lbr BranchCapturer, out Emitter) *Engine {
	return &Engine{
		funcs:  funcs,
		stacks: make([]CallStack, numCPU),
		clock:  clock,
		ident:  ident,
		kstack: kstack,
		lbr:    lbr,
		out:    out,
	}
}

// EnableIntermediateFlush turns on the -A "emit intermediate, non-final
// stacks" supplement: every OnEntry/OnExit call checks whether at least
// intervalNS has elapsed since the last flush for that cpu and, if so,
// emits a copy of the still-live stack (Depth > 0, top-level entry not yet
// returned) through the same Emitter used for final records. A zero
// intervalNS disables the flush, which is also the zero-value default.
//
// This is additive: it never changes what §4.3.5 emits on depth->0, it
// only emits extra, distinguishable-by-Depth>0 snapshots in between.
func (e *Engine) EnableIntermediateFlush(intervalNS uint64) {
	e.intrInterval = intervalNS
	if intervalNS > 0 && e.lastFlush == nil {
		e.lastFlush = make([]uint64, len(e.stacks))
	}
}

// maybeFlushIntermediate emits a snapshot of the still-live stack for cpu
// if intermediate flushing is enabled, the stack is mid-trace (Depth > 0),
// and enough time has passed since the last flush for this cpu.
func (e *Engine) maybeFlushIntermediate(cpu int) {
	if e.intrInterval == 0 {
		return
	}
	s := &e.stacks[cpu]
	if s.Depth == 0 {
		return
	}
	now := e.clock.Now()
	if now-e.lastFlush[cpu] < e.intrInterval {
		return
	}
	e.lastFlush[cpu] = now
	e.out.Emit(cpu, *s)
}

// Stack returns the live CallStack for cpu, for diagnostics and tests. It is
// only safe to read from the goroutine that also drives events for cpu.
func (e *Engine) Stack(cpu int) *CallStack { return &e.stacks[cpu] }

// OnEntry handles a function entry event, per §4.3.1.
func (e *Engine) OnEntry(cpu int, id functable.FuncID) {
	s := &e.stacks[cpu]
	flags := e.funcs.Flags(id)

	d := s.Depth
	if d == 0 && !flags.Has(typeinfo.IsEntry) {
		return // ignore non-entry starts
	}
	if d == MaxFstackDepth {
		return // overflow ignored
	}
	if s.Depth != s.MaxDepth && s.IsErr {
		s.saveStitch() // preserve failing sibling before it's overwritten
	}

	if d == 0 {
		s.PID, s.TGID, s.Comm = e.ident.CurrentTask(cpu)
	}

	s.FuncIDs[d] = id
	s.FuncLat[d] = e.clock.Now()
	s.IsErr = false
	s.Depth = d + 1
	s.MaxDepth = d + 1

	e.maybeFlushIntermediate(cpu)
}

// OnExit handles a function exit event, per §4.3.2.
func (e *Engine) OnExit(cpu int, id functable.FuncID, ret int64) {
	s := &e.stacks[cpu]
	if s.Depth == 0 {
		return
	}
	d := s.Depth - 1
	if s.FuncIDs[d] != id {
		*s = CallStack{} // desynchronized stack: full reset (invariant 3)
		return
	}

	flags := e.funcs.Flags(id)
	failed := typeinfo.Failed(flags, ret)

	s.FuncRes[d] = ret
	s.FuncLat[d] = e.clock.Now() - s.FuncLat[d] // start ts -> duration

	if failed && !s.IsErr {
		s.IsErr = true
		s.MaxDepth = d + 1 // freeze the failing depth
		if e.kstack != nil {
			s.KstackSz = e.kstack.CaptureKernelStack(cpu, s.Kstack[:])
		}
		if e.lbr != nil {
			s.LBRSz = e.lbr.CaptureBranchStack(cpu, s.LBRs[:])
		}
	}

	s.Depth = d
	if s.Depth == 0 {
		s.EmitTS = e.clock.Now()
		rec := *s
		e.out.Emit(cpu, rec)
		*s = CallStack{} // clean slate for the next top-level entry
		return
	}
	e.maybeFlushIntermediate(cpu)
}


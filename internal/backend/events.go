package backend

import "github.com/mna/retsnoop/internal/functable"

// Event is one (cpu, func_id, ip[, retval]) observation from the in-kernel
// probe/trampoline mechanism. Entry events carry Ret==0 and are ignored;
// Exit carries the function's raw return value. Producing this stream is
// the in-kernel probe mechanism's job, out of scope here per §1 — the
// engine only ever consumes it.
type Event struct {
	CPU  int
	ID   functable.FuncID
	IP   uint64
	Ret  int64
	Exit bool
}

// EventSource is the narrow interface the driver loop in internal/maincmd
// reads from to feed internal/engine.Engine.OnEntry/OnExit. A real
// implementation decodes entry/exit records out of the attached programs'
// ring buffer or perf event array. CiliumBackend does not implement it;
// when the backend lacks it, Run feeds no events and waits for
// cancellation.
type EventSource interface {
	Events() <-chan Event
}

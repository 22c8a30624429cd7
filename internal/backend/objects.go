package backend

import (
	"github.com/cilium/ebpf"
	"github.com/gravitational/trace"
)

// RuntimeError wraps a failure that happens after attachment has succeeded:
// a map read error, a lost ring-buffer sample, a program that stopped
// producing events. It is the concrete type behind the RuntimeError
// taxonomy entry of spec §7.
type RuntimeError struct {
	Op     string
	Reason string
}

func (e *RuntimeError) Error() string {
	return "runtime: " + e.Op + ": " + e.Reason
}

// Objects bundles the loaded BPF programs and maps the driver loop needs:
// the entry/exit trampolines to attach, and the per-CPU scratch maps the
// entry program populates for the exit program (and the engine's
// TaskIdentity/KstackCapturer collaborators) to read back.
type Objects struct {
	EntryProg, ExitProg *ebpf.Program
	StackMap, IdentMap  *ebpf.Map
}

// LoadObjects compiles (or loads a pre-compiled object for) the in-kernel
// entry/exit trampolines and their backing maps. Producing that compiled
// BPF object is the "in-kernel probe/trampoline mechanism" collaborator
// spec §1 explicitly places outside the hard core being specified here;
// this seam is where a concrete build (cilium/ebpf/cmd/bpf2go-generated
// loader, most commonly) plugs in. Until one is wired, it reports a
// RuntimeError rather than attaching against nil programs.
var LoadObjects = func() (*Objects, error) {
	return nil, trace.Wrap(&RuntimeError{
		Op:     "load BPF objects",
		Reason: "no compiled probe object is wired into this build",
	})
}

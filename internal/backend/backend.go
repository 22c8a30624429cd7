// Package backend is the shim between the engine and the in-kernel
// probe/trampoline mechanism, per Design Note 3. The engine and planner
// only ever see this narrow interface; everything about loading BPF
// programs, attaching them to kernel functions, and reading per-CPU stack
// maps lives here.
package backend

import "fmt"

// Mode selects how functions are attached, corresponding to the mutually
// exclusive -M/-K/-F flags.
type Mode int

const (
	// ModeAuto is the default when no -M/-K/-F flag is given. CiliumBackend
	// attaches it exactly like ModeMulti; it does not fall back to another
	// mode when the multi-link attach fails.
	ModeAuto Mode = iota
	// ModeMulti attaches every function through a single multi-link
	// (bpf_link, one syscall for N functions). Requires a kernel new enough
	// to expose the multi-kprobe link type.
	ModeMulti
	// ModeKprobe attaches one legacy kprobe/kretprobe pair per function.
	ModeKprobe
	// ModeFentry attaches one fentry/fexit pair per function.
	ModeFentry
)

func (m Mode) String() string {
	switch m {
	case ModeMulti:
		return "multi"
	case ModeKprobe:
		return "kprobe"
	case ModeFentry:
		return "fentry"
	default:
		return "auto"
	}
}

// Result summarizes the outcome of an attach attempt, including the
// functions the backend refused, per §4.1 step 3 ("optimized-out,
// blacklisted, ambiguous multi-instance symbols").
type Result struct {
	Attached int
	Rejected map[string]string // name -> reason
}

// AttachError wraps a rejection; it is the concrete type behind the
// AttachError taxonomy entry of spec §7.
type AttachError struct {
	Name   string
	Reason string
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attach %s: %s", e.Name, e.Reason)
}

// Candidate is one function the planner is considering for attachment,
// before the backend has had a chance to reject it.
type Candidate struct {
	Name      string
	EntryAddr uint64
	BodySize  uint64
}

// Backend is the narrow interface the planner and engine driver depend on.
// A real implementation loads compiled BPF programs (out of scope here,
// per §1) and attaches them via github.com/cilium/ebpf/link; tests
// use an in-memory fake.
type Backend interface {
	// Attachable filters candidates down to the ones the backend can
	// actually instrument, tagging rejects with a reason.
	Attachable(candidates []Candidate) (ok []Candidate, rejected map[string]string)
	// Attach installs probes for the given functions in the given mode and
	// returns the number successfully attached.
	Attach(mode Mode, funcs []Candidate) (Result, error)
	// Detach removes every attached probe. Bounded time, per §5.
	Detach() error
	// NumCPU reports how many per-CPU slots the caller must allocate.
	NumCPU() int
}

package backend

import (
	"fmt"
	"runtime"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/gravitational/trace"
)

// CiliumBackend attaches probes through github.com/cilium/ebpf/link. Progs
// supplies the already-loaded entry/exit BPF programs (compiling and
// loading the BPF object itself is the in-kernel probe mechanism collaborator
// that spec §1 puts out of scope).
type CiliumBackend struct {
	EntryProg *ebpf.Program
	ExitProg  *ebpf.Program

	links []link.Link
}

// Attachable reports every candidate attachable: real rejection reasons
// (optimized-out, blacklisted, ambiguous multi-instance symbols) only
// surface once the kernel refuses a specific symbol during Attach, so this
// conservative pre-check only screens out the obviously-unusable.
func (b *CiliumBackend) Attachable(candidates []Candidate) ([]Candidate, map[string]string) {
	rejected := make(map[string]string)
	ok := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Name == "" {
			rejected[c.Name] = "empty symbol"
			continue
		}
		ok = append(ok, c)
	}
	return ok, rejected
}

// Attach installs probes for funcs in the requested mode.
func (b *CiliumBackend) Attach(mode Mode, funcs []Candidate) (Result, error) {
	switch mode {
	case ModeMulti, ModeAuto:
		return b.attachMulti(funcs)
	case ModeKprobe:
		return b.attachKprobe(funcs)
	case ModeFentry:
		return b.attachFentry(funcs)
	default:
		return Result{}, trace.BadParameter("unknown attach mode %v", mode)
	}
}

func (b *CiliumBackend) attachMulti(funcs []Candidate) (Result, error) {
	names := make([]string, len(funcs))
	for i, f := range funcs {
		names[i] = f.Name
	}
	res := Result{Rejected: map[string]string{}}

	entryLink, err := link.KprobeMulti(b.EntryProg, link.KprobeMultiOptions{Symbols: names})
	if err != nil {
		return res, &AttachError{Name: "<multi>", Reason: err.Error()}
	}
	exitLink, err := link.KprobeMulti(b.ExitProg, link.KprobeMultiOptions{Symbols: names, Return: true})
	if err != nil {
		_ = entryLink.Close()
		return res, &AttachError{Name: "<multi>", Reason: err.Error()}
	}
	b.links = append(b.links, entryLink, exitLink)
	res.Attached = len(funcs)
	return res, nil
}

func (b *CiliumBackend) attachKprobe(funcs []Candidate) (Result, error) {
	res := Result{Rejected: map[string]string{}}
	for _, f := range funcs {
		entryLink, err := link.Kprobe(f.Name, b.EntryProg, nil)
		if err != nil {
			res.Rejected[f.Name] = err.Error()
			continue
		}
		exitLink, err := link.Kretprobe(f.Name, b.ExitProg, nil)
		if err != nil {
			_ = entryLink.Close()
			res.Rejected[f.Name] = err.Error()
			continue
		}
		b.links = append(b.links, entryLink, exitLink)
		res.Attached++
	}
	if res.Attached == 0 && len(funcs) > 0 {
		return res, &AttachError{Name: funcs[0].Name, Reason: "no function could be attached"}
	}
	return res, nil
}

func (b *CiliumBackend) attachFentry(funcs []Candidate) (Result, error) {
	res := Result{Rejected: map[string]string{}}
	for _, f := range funcs {
		entryLink, err := link.AttachTracing(link.TracingOptions{Program: b.EntryProg, AttachSymbol: f.Name})
		if err != nil {
			res.Rejected[f.Name] = err.Error()
			continue
		}
		exitLink, err := link.AttachTracing(link.TracingOptions{Program: b.ExitProg, AttachSymbol: f.Name})
		if err != nil {
			_ = entryLink.Close()
			res.Rejected[f.Name] = err.Error()
			continue
		}
		b.links = append(b.links, entryLink, exitLink)
		res.Attached++
	}
	if res.Attached == 0 && len(funcs) > 0 {
		return res, &AttachError{Name: funcs[0].Name, Reason: "no function could be attached"}
	}
	return res, nil
}

// Detach closes every link opened by Attach, in LIFO order, and reports the
// first error encountered (if any) after attempting all of them.
func (b *CiliumBackend) Detach() error {
	var firstErr error
	for i := len(b.links) - 1; i >= 0; i-- {
		if err := b.links[i].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("detach link %d: %w", i, err)
		}
	}
	b.links = nil
	return firstErr
}

// NumCPU reports the number of logical CPUs to size per-CPU state for.
func (b *CiliumBackend) NumCPU() int { return runtime.NumCPU() }

package backend

import (
	"encoding/binary"

	"github.com/cilium/ebpf"
)

// StackMap reads native kernel stack snapshots out of a per-CPU BPF array
// map that the attached exit program already populated (via the in-kernel
// bpf_get_stack() helper) before raising the exit event. This is the
// concrete KstackCapturer the engine is driven with in production; it
// satisfies internal/engine.KstackCapturer.
type StackMap struct {
	m        *ebpf.Map
	maxDepth int
}

// NewStackMap wraps an already-created per-CPU array map of raw address
// slots, maxDepth entries per CPU.
func NewStackMap(m *ebpf.Map, maxDepth int) *StackMap {
	return &StackMap{m: m, maxDepth: maxDepth}
}

// CaptureKernelStack copies cpu's current slot out of the map into out,
// leaf address first, and returns how many entries were valid (a zero
// address terminates the snapshot early).
func (s *StackMap) CaptureKernelStack(cpu int, out []uint64) int {
	raw := make([]byte, s.maxDepth*8)
	if err := s.m.Lookup(uint32(cpu), &raw); err != nil {
		return 0
	}
	n := 0
	for i := 0; i < s.maxDepth && n < len(out); i++ {
		addr := binary.LittleEndian.Uint64(raw[i*8:])
		if addr == 0 {
			break
		}
		out[n] = addr
		n++
	}
	return n
}

package backend

import (
	"encoding/binary"

	"github.com/cilium/ebpf"
)

// identRecord mirrors the layout the BPF entry program writes via
// bpf_get_current_pid_tgid() and bpf_get_current_comm().
type identRecord struct {
	PID, TGID uint32
	Comm      [16]byte
}

const identRecordSize = 4 + 4 + 16

// TaskIdentMap reads the current task's pid/tgid/comm out of a per-CPU
// scratch map populated by the entry program, satisfying
// internal/engine.TaskIdentity.
type TaskIdentMap struct {
	m *ebpf.Map
}

// NewTaskIdentMap wraps an already-created per-CPU array map with one
// identRecord-sized slot per CPU.
func NewTaskIdentMap(m *ebpf.Map) *TaskIdentMap { return &TaskIdentMap{m: m} }

// CurrentTask returns the task identity last recorded for cpu.
func (t *TaskIdentMap) CurrentTask(cpu int) (pid, tgid uint32, comm [16]byte) {
	raw := make([]byte, identRecordSize)
	if err := t.m.Lookup(uint32(cpu), &raw); err != nil {
		return 0, 0, comm
	}
	pid = binary.LittleEndian.Uint32(raw[0:4])
	tgid = binary.LittleEndian.Uint32(raw[4:8])
	copy(comm[:], raw[8:24])
	return pid, tgid, comm
}

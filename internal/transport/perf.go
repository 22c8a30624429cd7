package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/perf"

	"github.com/mna/retsnoop/internal/engine"
)

// PerfReader decodes CallStack records out of a cilium/ebpf perf event
// array, for deployments where the in-kernel side writes completed records
// directly to a perf ring instead of calling back into this process. It is
// the real-backend analogue of Queue for when the probe side truly runs in
// the kernel rather than in this Go process.
type PerfReader struct {
	rd *perf.Reader
}

// NewPerfReader opens a perf reader over m with perCPUBufferSize bytes of
// ring per CPU.
func NewPerfReader(m *ebpf.Map, perCPUBufferSize int) (*PerfReader, error) {
	rd, err := perf.NewReader(m, perCPUBufferSize)
	if err != nil {
		return nil, fmt.Errorf("open perf reader: %w", err)
	}
	return &PerfReader{rd: rd}, nil
}

// Read blocks (up to the reader's own close) for the next sample and
// decodes it into a CallStack. RuntimeErrors (lost samples) are reported
// via the lost count return rather than aborting the stream, per §7.
func (p *PerfReader) Read() (cpu int, rec engine.CallStack, lost uint64, err error) {
	rawSample, err := p.rd.Read()
	if err != nil {
		return 0, rec, 0, err
	}
	if rawSample.LostSamples > 0 {
		return rawSample.CPU, rec, rawSample.LostSamples, nil
	}
	rec, err = decodeCallStack(rawSample.RawSample)
	return rawSample.CPU, rec, 0, err
}

// Close releases the underlying ring buffer.
func (p *PerfReader) Close() error { return p.rd.Close() }

// decodeCallStack is a placeholder wire decoder: the actual byte layout is
// produced by the in-kernel side (out of scope here, per §1); this
// just demonstrates the shape a real decoder would have, reading the fixed
// header fields every implementation needs regardless of wire format.
func decodeCallStack(raw []byte) (engine.CallStack, error) {
	var rec engine.CallStack
	if len(raw) < 16 {
		return rec, fmt.Errorf("transport: short record (%d bytes)", len(raw))
	}
	rec.PID = binary.LittleEndian.Uint32(raw[0:4])
	rec.TGID = binary.LittleEndian.Uint32(raw[4:8])
	rec.EmitTS = binary.LittleEndian.Uint64(raw[8:16])
	return rec, nil
}

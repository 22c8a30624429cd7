// Package calib implements the feature detector and clock calibrator of
// §4.7: probing runtime capabilities before attachment, and computing the
// offset between the probe-side monotonic clock and wall clock so the
// renderer can print wall-clock timestamps without reading the wall clock
// per event.
package calib

import (
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/features"

	"golang.org/x/sys/unix"
)

// Features summarizes the capabilities the planner and transport select
// implementations on, per §4.7: "availability of ring-buffer transport,
// function-IP helper, branch-snapshot helper, cookies on probes,
// multi-attach probes".
type Features struct {
	RingBuffer    bool
	FuncIP        bool
	BranchSnapsot bool
	ProbeCookies  bool
	MultiAttach   bool
}

// Detect fills in Features. Only RingBuffer (a map-type probe) and
// BranchSnapsot (a trial perf_event_open) are probed against the running
// kernel; MultiAttach, FuncIP and ProbeCookies are always reported false.
// Each probe degrades to false rather than erroring: feature detection
// never aborts a run.
func Detect() Features {
	var f Features
	f.RingBuffer = features.HaveMapType(ebpf.RingBuf) == nil
	f.MultiAttach = haveKprobeMulti()
	f.FuncIP = haveFuncIP()
	f.BranchSnapsot = haveBranchSnapshot()
	f.ProbeCookies = haveProbeCookies()
	return f
}

// haveKprobeMulti conservatively reports whether the kernel exposes the
// multi-kprobe link type; a real implementation attempts a throwaway
// attach and inspects the error, which requires a loaded program and is
// therefore left to the backend's own Attachable/Attach probing instead of
// duplicating kernel probing logic here.
func haveKprobeMulti() bool { return false }

func haveFuncIP() bool { return false }

func haveBranchSnapshot() bool {
	attr := &unix.PerfEventAttr{
		Type:        unix.PERF_TYPE_HARDWARE,
		Config:      unix.PERF_COUNT_HW_CPU_CYCLES,
		Sample_type: unix.PERF_SAMPLE_BRANCH_STACK,
		Bits:        unix.PerfBitDisabled | unix.PerfBitExcludeKernel,
	}
	fd, err := unix.PerfEventOpen(attr, -1, 0, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return false
	}
	_ = unix.Close(fd)
	return true
}

func haveProbeCookies() bool { return false }

// Sample is one (wall, mono, wall') triple taken around a single monotonic
// read, per §4.7's calibration procedure.
type Sample struct {
	Wall, Wall2 time.Time
	Mono        time.Duration
}

// NowFunc abstracts the probe-side monotonic clock read for tests; in
// production it reads the same clock source the probe side's Clock
// interface (internal/engine.Clock) is backed by.
type NowFunc func() time.Duration

// Calibrate samples the wall and monotonic clocks ten times and returns the
// offset to add to a probe-side monotonic timestamp to print a wall-clock
// time, per §4.7: "Pick the triple with smallest wall'-wall and set offset
// = (wall+wall')/2 - mono".
func Calibrate(mono NowFunc) time.Duration {
	const rounds = 10
	var best Sample
	bestSpread := time.Duration(1<<63 - 1)
	for i := 0; i < rounds; i++ {
		wall := time.Now()
		m := mono()
		wall2 := time.Now()
		spread := wall2.Sub(wall)
		if spread < bestSpread {
			bestSpread = spread
			best = Sample{Wall: wall, Wall2: wall2, Mono: m}
		}
	}
	mid := best.Wall.Add(best.Wall2.Sub(best.Wall) / 2)
	return time.Duration(mid.UnixNano()) - best.Mono
}

// WallTime converts a probe-side monotonic timestamp (nanoseconds) to a
// wall-clock time using a previously computed Calibrate offset.
func WallTime(monoNS uint64, offset time.Duration) time.Time {
	return time.Unix(0, int64(monoNS)+int64(offset))
}

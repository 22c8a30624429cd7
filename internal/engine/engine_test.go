package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/retsnoop/internal/engine"
	"github.com/mna/retsnoop/internal/functable"
	"github.com/mna/retsnoop/internal/typeinfo"
)

// fakeClock is a monotonic counter: each call to Now returns the next tick,
// which makes asserting on func_lat (duration = exit-tick - entry-tick)
// deterministic in tests.
type fakeClock struct{ t uint64 }

func (c *fakeClock) Now() uint64 { c.t++; return c.t }

type fakeIdent struct{}

func (fakeIdent) CurrentTask(cpu int) (uint32, uint32, [16]byte) {
	return 111, 222, [16]byte{'t', 'e', 's', 't'}
}

type fakeKstack struct{ calls int }

func (k *fakeKstack) CaptureKernelStack(cpu int, out []uint64) int {
	k.calls++
	out[0] = 0xdead
	out[1] = 0xbeef
	return 2
}

type recorder struct{ recs []engine.CallStack }

func (r *recorder) Emit(cpu int, rec engine.CallStack) { r.recs = append(r.recs, rec) }

const (
	idA functable.FuncID = iota
	idB
	idC
)

func newTestEngine(t *testing.T, funcs functable.Table) (*engine.Engine, *recorder, *fakeKstack) {
	t.Helper()
	rec := &recorder{}
	ks := &fakeKstack{}
	e := engine.New(funcs, 1, &fakeClock{}, fakeIdent{}, ks, nil, rec)
	return e, rec, ks
}

// S1 — single failing entry.
func TestSingleFailingEntry(t *testing.T) {
	funcs := functable.Table{
		idA: {Name: "A", Flags: typeinfo.IsEntry},
		idB: {Name: "B", Flags: 0},
	}
	e, rec, ks := newTestEngine(t, funcs)

	e.OnEntry(0, idA)
	e.OnEntry(0, idB)
	e.OnExit(0, idB, -2) // -ENOENT
	e.OnExit(0, idA, -2)

	require.Len(t, rec.recs, 1)
	r := rec.recs[0]
	assert.Equal(t, 0, r.Depth)
	assert.Equal(t, 2, r.MaxDepth)
	assert.True(t, r.IsErr)
	assert.Equal(t, int64(-2), r.FuncRes[0])
	assert.Equal(t, int64(-2), r.FuncRes[1])
	assert.Equal(t, 1, ks.calls, "kernel stack captured exactly once, on first failure")
	assert.Equal(t, 2, r.KstackSz)
}

// S2 — recovery + sibling stitching.
func TestRecoveryAndSiblingStitch(t *testing.T) {
	funcs := functable.Table{
		idA: {Name: "A", Flags: typeinfo.IsEntry},
		idB: {Name: "B", Flags: 0},
		idC: {Name: "C", Flags: 0},
	}
	e, rec, _ := newTestEngine(t, funcs)

	e.OnEntry(0, idA)
	e.OnEntry(0, idB)
	e.OnExit(0, idB, -12) // B fails, freezes max_depth=2, is_err=true
	e.OnEntry(0, idC)     // new sibling entry while a failure is frozen: stitch saved
	e.OnExit(0, idC, 0)   // C succeeds
	e.OnExit(0, idA, 0)   // A succeeds overall

	require.Len(t, rec.recs, 1)
	r := rec.recs[0]
	assert.Equal(t, 0, r.Depth)
	assert.Equal(t, 2, r.MaxDepth, "current path A->C, frozen at A's own completion")
	assert.False(t, r.IsErr, "current path recovered")
	assert.Equal(t, idC, r.FuncIDs[1])
	assert.Equal(t, 2, r.SavedDepth)
	assert.Equal(t, 2, r.SavedMaxDepth)
	assert.Equal(t, idB, r.SavedIDs[1])
	assert.Equal(t, int64(-12), r.SavedRes[1])
	assert.True(t, r.HasStitch())
}

// S3 — stack desync recovers to a clean reset, then proceeds normally.
func TestStackDesyncRecovers(t *testing.T) {
	funcs := functable.Table{
		idA: {Name: "A", Flags: typeinfo.IsEntry},
		idB: {Name: "B", Flags: 0},
	}
	e, rec, _ := newTestEngine(t, funcs)

	e.OnEntry(0, idA)
	e.OnEntry(0, idB)
	e.OnExit(0, idA, 0) // missing exit for B: desync

	require.Empty(t, rec.recs, "no record emitted on desync")
	s := e.Stack(0)
	assert.Equal(t, 0, s.Depth)
	assert.Equal(t, 0, s.MaxDepth)
	assert.False(t, s.IsErr)

	e.OnEntry(0, idA)
	e.OnExit(0, idA, 0)
	require.Len(t, rec.recs, 1, "subsequent top-level trace proceeds normally")
}

// S4 — pointer-returning function: null is failure, a valid kernel pointer
// is not, and a negative errno-shaped value still is.
func TestPointerReturnClassification(t *testing.T) {
	funcs := functable.Table{
		idA: {Name: "A", Flags: typeinfo.IsEntry | typeinfo.RetPtr},
	}

	validKernelPtr := uint64(0xffff800000001234)
	cases := []struct {
		name   string
		ret    int64
		wantErr bool
	}{
		{"null", 0, true},
		{"valid kernel pointer", int64(validKernelPtr), false},
		{"efault-shaped", -14, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, rec, _ := newTestEngine(t, funcs)
			e.OnEntry(0, idA)
			e.OnExit(0, idA, tc.ret)
			require.Len(t, rec.recs, 1)
			assert.Equal(t, tc.wantErr, rec.recs[0].IsErr)
		})
	}
}

func TestNonEntryStartIgnored(t *testing.T) {
	funcs := functable.Table{
		idA: {Name: "A", Flags: 0}, // not IS_ENTRY
	}
	e, rec, _ := newTestEngine(t, funcs)
	e.OnEntry(0, idA)
	e.OnExit(0, idA, -1)
	assert.Empty(t, rec.recs)
	assert.Equal(t, 0, e.Stack(0).Depth)
}

// -A: with the periodic flush enabled, a still-live path emits an
// intermediate snapshot (Depth > 0) once the configured interval elapses,
// without disturbing the eventual final emission on depth->0.
func TestIntermediateFlushEmitsLiveSnapshot(t *testing.T) {
	funcs := functable.Table{
		idA: {Name: "A", Flags: typeinfo.IsEntry},
		idB: {Name: "B", Flags: 0},
	}
	e, rec, _ := newTestEngine(t, funcs)
	e.EnableIntermediateFlush(1) // flush on every tick for a deterministic test

	e.OnEntry(0, idA)
	e.OnEntry(0, idB)
	require.NotEmpty(t, rec.recs, "a live snapshot was flushed before A returned")
	for _, r := range rec.recs {
		assert.Greater(t, r.Depth, 0, "intermediate snapshots are always mid-trace")
	}

	e.OnExit(0, idB, 0)
	e.OnExit(0, idA, 0)
	final := rec.recs[len(rec.recs)-1]
	assert.Equal(t, 0, final.Depth, "the top-level entry still emits its final, completed record")
}

// -A disabled (the zero-value default) never flushes, matching existing
// callers of engine.New that don't opt in.
func TestIntermediateFlushDisabledByDefault(t *testing.T) {
	funcs := functable.Table{
		idA: {Name: "A", Flags: typeinfo.IsEntry},
	}
	e, rec, _ := newTestEngine(t, funcs)
	e.OnEntry(0, idA)
	assert.Empty(t, rec.recs)
	e.OnExit(0, idA, 0)
	assert.Len(t, rec.recs, 1)
}

func TestOverflowIgnored(t *testing.T) {
	funcs := make(functable.Table, 1)
	funcs[0] = functable.FuncInfo{Name: "R", Flags: typeinfo.IsEntry}
	e, _, _ := newTestEngine(t, funcs)
	for i := 0; i < engine.MaxFstackDepth+5; i++ {
		e.OnEntry(0, 0)
	}
	assert.Equal(t, engine.MaxFstackDepth, e.Stack(0).Depth)
}

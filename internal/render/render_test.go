package render_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/retsnoop/internal/backend"
	"github.com/mna/retsnoop/internal/engine"
	"github.com/mna/retsnoop/internal/errno"
	"github.com/mna/retsnoop/internal/functable"
	"github.com/mna/retsnoop/internal/render"
	"github.com/mna/retsnoop/internal/typeinfo"
)

const (
	idA functable.FuncID = iota
	idB
)

func newRenderer(t *testing.T, buf *bytes.Buffer) *render.Renderer {
	t.Helper()
	funcs := functable.Table{
		idA: {Name: "A", Flags: typeinfo.IsEntry},
		idB: {Name: "B", Flags: 0},
	}
	return &render.Renderer{
		Funcs: funcs,
		Allow: errno.NewAllowMask(),
		Deny:  errno.NewDenyMask(),
		Opts:  render.Options{ReportSucc: false},
		Out:   buf,
	}
}

// S1 — single failing entry renders one header line and two frame lines.
func TestProcessSingleFailingEntry(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(t, &buf)

	rec := engine.CallStack{
		Depth: 0, MaxDepth: 2,
		FuncIDs: [engine.MaxFstackDepth]functable.FuncID{idA, idB},
		FuncRes: [engine.MaxFstackDepth]int64{-2, -2},
		IsErr:   true,
	}
	ok, err := r.Process(rec)
	require.NoError(t, err)
	assert.True(t, ok)
	out := buf.String()
	assert.Contains(t, out, "[-ENOENT]")
}

func TestProcessDiscardsSuccessByDefault(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(t, &buf)
	rec := engine.CallStack{MaxDepth: 1, FuncIDs: [engine.MaxFstackDepth]functable.FuncID{idA}, IsErr: false}
	ok, err := r.Process(rec)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, buf.String())
}

func TestProcessReportSuccOptIn(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(t, &buf)
	r.Opts.ReportSucc = true
	rec := engine.CallStack{MaxDepth: 1, FuncIDs: [engine.MaxFstackDepth]functable.FuncID{idA}, IsErr: false}
	ok, err := r.Process(rec)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAttachErrorFormats(t *testing.T) {
	err := &backend.AttachError{Name: "foo", Reason: "busy"}
	assert.Contains(t, err.Error(), "foo")
}

// -A: a still-live (Depth > 0) snapshot is dropped unless ReportIntr is set.
func TestProcessIntermediateRequiresOptIn(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(t, &buf)
	rec := engine.CallStack{Depth: 1, MaxDepth: 1, FuncIDs: [engine.MaxFstackDepth]functable.FuncID{idA}}
	ok, err := r.Process(rec)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, buf.String())
}

// -A: once opted in, an intermediate snapshot renders the live call path
// without any error/latency classification (the path hasn't finished).
func TestProcessIntermediateRenders(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(t, &buf)
	r.Opts.ReportIntr = true
	rec := engine.CallStack{
		Depth: 2, MaxDepth: 2,
		FuncIDs: [engine.MaxFstackDepth]functable.FuncID{idA, idB},
		FuncLat: [engine.MaxFstackDepth]uint64{1000, 2000},
	}
	ok, err := r.Process(rec)
	require.NoError(t, err)
	assert.True(t, ok)
	out := buf.String()
	assert.Contains(t, out, "[intermediate]")
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "B")
}

// -A: the process identity filters still apply to intermediate snapshots.
func TestProcessIntermediateRespectsProcessFilter(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(t, &buf)
	r.Opts.ReportIntr = true
	r.Opts.DenyPIDs = map[uint32]bool{42: true}
	rec := engine.CallStack{
		Depth: 1, MaxDepth: 1,
		FuncIDs: [engine.MaxFstackDepth]functable.FuncID{idA},
		PID:     42,
	}
	ok, err := r.Process(rec)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, buf.String())
}

package maincmd

import (
	"context"
	"fmt"
	"time"

	"github.com/gravitational/trace"
	"github.com/mna/mainer"
	"github.com/sirupsen/logrus"

	"github.com/mna/retsnoop/internal/backend"
	"github.com/mna/retsnoop/internal/calib"
	"github.com/mna/retsnoop/internal/config"
	"github.com/mna/retsnoop/internal/engine"
	"github.com/mna/retsnoop/internal/errno"
	"github.com/mna/retsnoop/internal/globset"
	"github.com/mna/retsnoop/internal/ksym"
	"github.com/mna/retsnoop/internal/lbr"
	"github.com/mna/retsnoop/internal/planner"
	"github.com/mna/retsnoop/internal/render"
	"github.com/mna/retsnoop/internal/symbolize"
	"github.com/mna/retsnoop/internal/transport"
)

// Run takes the Config that Validate built from the parsed flags and drives
// the whole pipeline: load the kernel symbol table, compile globs, plan the
// attachment set, attach, and pump events into the renderer until ctx is
// canceled. There is exactly one command, unlike a multi-subcommand CLI.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, log *logrus.Logger) error {
	cfg := c.cfg

	syms, err := ksym.Load("")
	if err != nil {
		return trace.Wrap(err)
	}

	var dwarfRes *symbolize.Resolver
	if cfg.DebugImage != "" {
		dwarfRes, err = symbolize.Open(cfg.DebugImage)
		if err != nil {
			// §7: missing/bad debug info downgrades symbolization silently
			// when -s defaulted; an explicitly requested -k that fails to
			// open is still a ConfigError, since the user asked for it.
			return trace.Wrap(config.Error("open debug image %q: %v", cfg.DebugImage, err))
		}
		defer dwarfRes.Close()
	}

	entry, err := globset.Compile(cfg.EntryGlobs, dwarfRes)
	if err != nil {
		return trace.Wrap(err)
	}
	allow, err := globset.Compile(cfg.AllowGlobs, dwarfRes)
	if err != nil {
		return trace.Wrap(err)
	}
	deny, err := globset.Compile(cfg.DenyGlobs, dwarfRes)
	if err != nil {
		return trace.Wrap(err)
	}

	allowMask, denyMask, err := buildErrnoMasks(cfg)
	if err != nil {
		return trace.Wrap(err)
	}

	feats := calib.Detect()
	log.WithFields(logrus.Fields{
		"ring_buffer":    feats.RingBuffer,
		"multi_attach":   feats.MultiAttach,
		"func_ip":        feats.FuncIP,
		"branch_snapsot": feats.BranchSnapsot,
		"probe_cookies":  feats.ProbeCookies,
	}).Debug("detected kernel features")

	planBackend := &backend.CiliumBackend{}
	table, err := planner.Build(planner.Plan{
		Entry:    entry,
		Allow:    allow,
		Deny:     deny,
		Symbols:  syms,
		Backend:  planBackend,
		MaxFuncs: cfg.StacksMapSize,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	log.Infof("planned %d functions for attachment", len(table))

	if cfg.DryRun {
		fmt.Fprintf(stdio.Stdout, "dry run: %d functions planned, attach mode %s, symbolize=%v\n",
			len(table), cfg.AttachMode, cfg.SymMode != config.SymNone)
		return nil
	}

	objs, err := backend.LoadObjects()
	if err != nil {
		return trace.Wrap(err)
	}

	bk := &backend.CiliumBackend{EntryProg: objs.EntryProg, ExitProg: objs.ExitProg}
	candidates := make([]backend.Candidate, len(table))
	for i, fi := range table {
		candidates[i] = backend.Candidate{Name: fi.Name, EntryAddr: fi.EntryAddr, BodySize: fi.BodySize}
	}
	res, err := bk.Attach(cfg.AttachMode, candidates)
	if err != nil {
		return trace.Wrap(err)
	}
	log.Infof("attached %d/%d functions", res.Attached, len(candidates))
	defer func() {
		if err := bk.Detach(); err != nil {
			log.WithError(err).Warn("detach")
		}
	}()

	numCPU := bk.NumCPU()
	queue := transport.New(numCPU, 64)

	var branchCap engine.BranchCapturer
	if cfg.LBREnabled {
		lc, ok, err := lbr.Open(numCPU)
		if err != nil {
			return trace.Wrap(err)
		}
		if ok {
			branchCap = lc
			defer lc.Close()
		} else {
			log.Warn("LBR capture requested but unsupported on this kernel; disabling")
		}
	}

	start := time.Now()
	clk := monoClock{start: start}
	offset := calib.Calibrate(clk.nowDuration)

	var kstackCap engine.KstackCapturer
	if objs.StackMap != nil {
		kstackCap = backend.NewStackMap(objs.StackMap, engine.MaxKstackDepth)
	}
	var ident engine.TaskIdentity
	if objs.IdentMap != nil {
		ident = backend.NewTaskIdentMap(objs.IdentMap)
	} else {
		ident = nullIdentity{}
	}

	eng := engine.New(table, numCPU, clk, ident, kstackCap, branchCap, queue)
	if cfg.ReportIntr {
		eng.EnableIntermediateFlush(uint64(config.DefaultIntermediateFlush))
	}

	r := &render.Renderer{
		Funcs:   table,
		Allow:   allowMask,
		Deny:    denyMask,
		Symbols: syms,
		DWARF:   dwarfRes,
		Opts:    renderOptions(cfg, offset),
		Out:     stdio.Stdout,
	}

	if src, ok := any(bk).(backend.EventSource); ok {
		go pumpEvents(eng, src)
	} else {
		log.Debug("backend does not expose an event source; running detached until canceled")
	}

	dropped := drive(ctx, queue, r, cfg.PollTimeout)

	fmt.Fprintf(stdio.Stdout, "retsnoop: detached after %s, %d events dropped\n",
		time.Since(start).Round(time.Millisecond), dropped)
	return nil
}

// drive polls the transport queue until ctx is canceled, rendering every
// record that survives the filter pipeline, and returns the final dropped
// count for the shutdown banner.
func drive(ctx context.Context, q *transport.Queue, r *render.Renderer, timeout time.Duration) uint64 {
	for {
		select {
		case <-ctx.Done():
			return q.Dropped()
		default:
		}
		_, rec, ok := q.Poll(ctx, timeout)
		if !ok {
			continue
		}
		if _, err := r.Process(rec); err != nil {
			// rendering errors are per-record, not fatal to the run
			continue
		}
	}
}

// pumpEvents feeds engine entry/exit events out of src until its channel
// closes, translating the narrow backend.Event shape into the engine's two
// call signatures.
func pumpEvents(eng *engine.Engine, src backend.EventSource) {
	for ev := range src.Events() {
		if ev.Exit {
			eng.OnExit(ev.CPU, ev.ID, ev.Ret)
		} else {
			eng.OnEntry(ev.CPU, ev.ID)
		}
	}
}

func buildErrnoMasks(cfg *config.Config) (*errno.Mask, *errno.Mask, error) {
	allow := errno.NewAllowMask()
	for _, name := range cfg.AllowErrnos {
		e, err := errno.ErrnoOfName(name)
		if err != nil {
			return nil, nil, trace.Wrap(config.Error("-x %s", err))
		}
		allow.Set(e)
	}
	deny := errno.NewDenyMask()
	for _, name := range cfg.DenyErrnos {
		e, err := errno.ErrnoOfName(name)
		if err != nil {
			return nil, nil, trace.Wrap(config.Error("-X %s", err))
		}
		deny.Set(e)
	}
	return allow, deny, nil
}

func renderOptions(cfg *config.Config, offset time.Duration) render.Options {
	opts := render.Options{
		ReportSucc:  cfg.ReportSucc,
		ReportIntr:  cfg.ReportIntr,
		LongerThan:  time.Duration(cfg.LongerThanMS) * time.Millisecond,
		FullStacks:  cfg.FullStacks,
		Symbolize:   cfg.SymMode != config.SymNone,
		Inlines:     cfg.SymMode == config.SymInline,
		ClockOffset: offset,
	}
	if len(cfg.AllowPIDs) > 0 {
		opts.AllowPIDs = make(map[uint32]bool, len(cfg.AllowPIDs))
		for _, p := range cfg.AllowPIDs {
			opts.AllowPIDs[p] = true
		}
	}
	if len(cfg.DenyPIDs) > 0 {
		opts.DenyPIDs = make(map[uint32]bool, len(cfg.DenyPIDs))
		for _, p := range cfg.DenyPIDs {
			opts.DenyPIDs[p] = true
		}
	}
	if len(cfg.AllowComms) > 0 {
		opts.AllowComms = make(map[string]bool, len(cfg.AllowComms))
		for _, n := range cfg.AllowComms {
			opts.AllowComms[n] = true
		}
	}
	if len(cfg.DenyComms) > 0 {
		opts.DenyComms = make(map[string]bool, len(cfg.DenyComms))
		for _, n := range cfg.DenyComms {
			opts.DenyComms[n] = true
		}
	}
	return opts
}

// monoClock implements both engine.Clock and the calib.NowFunc shape over
// time.Since, since no real per-CPU hardware counter collaborator exists in
// this build (see backend.LoadObjects).
type monoClock struct{ start time.Time }

func (m monoClock) Now() uint64                { return uint64(time.Since(m.start)) }
func (m monoClock) nowDuration() time.Duration { return time.Since(m.start) }

// nullIdentity is used when no identity map was loaded; every record reports
// pid/tgid 0 and an empty comm rather than panicking.
type nullIdentity struct{}

func (nullIdentity) CurrentTask(cpu int) (pid, tgid uint32, comm [16]byte) { return 0, 0, comm }

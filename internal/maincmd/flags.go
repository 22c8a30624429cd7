package maincmd

import (
	"strconv"

	"github.com/mna/retsnoop/internal/config"
)

// buildConfig translates the parsed flag struct into an immutable
// config.Config, resolving the preset (-c) additively and the mutually
// exclusive symbolization and attach-mode flag groups. It does not touch
// the kernel symbol table or any live collaborator: everything here is a
// pure function of argv, matching config.Validate's own scope.
func (c *Cmd) buildConfig() (*config.Config, error) {
	cfg := &config.Config{
		EntryGlobs: append([]string(nil), c.EntryGlobs...),
		AllowGlobs: append([]string(nil), c.AllowGlobs...),
		DenyGlobs:  append([]string(nil), c.DenyGlobs...),

		AllowComms: append([]string(nil), c.AllowComms...),
		DenyComms:  append([]string(nil), c.DenyComms...),

		LongerThanMS: c.LongerThanMS,
		ReportSucc:   c.ReportSucc,
		ReportIntr:   c.ReportIntr,

		AllowErrnos: append([]string(nil), c.AllowErrnos...),
		DenyErrnos:  append([]string(nil), c.DenyErrnos...),

		DebugImage: c.DebugImage,

		LBREnabled: c.LBR,

		FullStacks:    c.FullStacks,
		StacksMapSize: c.StacksMapSize,
		DryRun:        c.DryRun,

		PollTimeout: config.DefaultPollTimeout,
		LogLevel:    c.logLevel(),
	}
	if cfg.StacksMapSize == 0 {
		cfg.StacksMapSize = config.DefaultStacksMapSize
	}

	if c.Preset != "" {
		p, err := config.Lookup(c.Preset)
		if err != nil {
			return nil, err
		}
		cfg.Apply(p)
	}

	pids, err := parseUint32List(c.AllowPIDs)
	if err != nil {
		return nil, config.Error("-p: %s", err)
	}
	cfg.AllowPIDs = pids
	pids, err = parseUint32List(c.DenyPIDs)
	if err != nil {
		return nil, config.Error("-P: %s", err)
	}
	cfg.DenyPIDs = pids

	switch {
	case c.SymInline:
		cfg.SymMode = config.SymInline
	case c.SymNone:
		cfg.SymMode = config.SymNone
	default:
		cfg.SymMode = config.SymLine
	}

	mode, err := c.attachMode()
	if err != nil {
		return nil, err
	}
	cfg.AttachMode = mode

	return cfg, nil
}

func parseUint32List(ss []string) ([]uint32, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	out := make([]uint32, len(ss))
	for i, s := range ss {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, err
		}
		out[i] = uint32(v)
	}
	return out, nil
}

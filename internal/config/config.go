// Package config holds the immutable configuration built once by maincmd
// from parsed flags and shared by reference with every other component, per
// §5 ("the function table, error masks, and configuration are immutable
// after initialization and shared by reference").
package config

import (
	"time"

	"github.com/gravitational/trace"

	"github.com/mna/retsnoop/internal/backend"
)

// SymbolMode selects how much source-level detail the renderer attaches to
// each native stack frame, per the -s/-ss/-sn flags.
type SymbolMode int

const (
	// SymLine resolves source file:line only (the -s default).
	SymLine SymbolMode = iota
	// SymInline additionally renders inlined frames (-ss).
	SymInline
	// SymNone disables symbolization entirely (-sn).
	SymNone
)

// Config is the fully-resolved, immutable configuration for a trace run. It
// is built once by internal/maincmd (Cmd.buildConfig) and passed by
// reference to the planner, engine driver and renderer; nothing in this
// package mutates a Config after it is built, apart from Apply merging a
// preset in during that build.
type Config struct {
	EntryGlobs []string
	AllowGlobs []string
	DenyGlobs  []string

	AllowPIDs  []uint32
	DenyPIDs   []uint32
	AllowComms []string // each at most 15 chars (Validate rejects longer), per §6 -n/-N
	DenyComms  []string

	LongerThanMS int
	ReportSucc   bool // -S
	ReportIntr   bool // -A, intermediate/non-final stacks

	AllowErrnos []string // raw -x arguments, resolved by internal/errno
	DenyErrnos  []string // raw -X arguments

	SymMode    SymbolMode
	DebugImage string // -k

	AttachMode backend.Mode

	LBREnabled bool
	LBRFlags   string

	FullStacks     bool
	StacksMapSize  int
	DryRun         bool

	PollTimeout time.Duration

	LogLevel int // 0 normal, 1 -v, 2 -vv, 3 -vvv
}

// DefaultPollTimeout matches §5's "the only blocking call is the transport
// poll (bounded timeout, default 100 ms)".
const DefaultPollTimeout = 100 * time.Millisecond

// DefaultStacksMapSize is the backend stack-map capacity used when
// --stacks-map-size is not given.
const DefaultStacksMapSize = 4096

// DefaultIntermediateFlush is how often the engine flushes a snapshot of
// each CPU's still-live call path when -A is set (the "emit intermediate,
// non-final stacks" supplement).
const DefaultIntermediateFlush = time.Second

// Error constructs the ConfigError taxonomy entry of spec §7: bad flag,
// unknown errno name, empty entry set. It returns a trace.BadParameter
// error so callers get consistent formatting/stack traces.
func Error(format string, args ...interface{}) error {
	return trace.BadParameter(format, args...)
}

// Validate applies the cross-flag checks that do not depend on the live
// kernel symbol universe (those belong to the planner's own validation
// step, per §4.1 step 6).
func (c *Config) Validate() error {
	if len(c.EntryGlobs) == 0 {
		return trace.Wrap(Error("at least one entry glob (-e) is required"))
	}
	if c.LongerThanMS < 0 {
		return trace.Wrap(Error("-L must not be negative"))
	}
	for _, comm := range c.AllowComms {
		if len(comm) > 15 {
			return trace.Wrap(Error("process name %q exceeds 15 characters", comm))
		}
	}
	for _, comm := range c.DenyComms {
		if len(comm) > 15 {
			return trace.Wrap(Error("process name %q exceeds 15 characters", comm))
		}
	}
	return nil
}

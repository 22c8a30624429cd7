// Package maincmd is the CLI surface of §6: flag parsing (struct-tag
// driven, via github.com/mna/mainer), validation, and the top-level run
// loop that wires every other package together.
package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/sirupsen/logrus"

	"github.com/mna/retsnoop/internal/backend"
	"github.com/mna/retsnoop/internal/config"
)

const binName = "retsnoop"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...]
       %[1]s -h|--help
       %[1]s -V|--version

Traces kernel call stacks whose leaf function returned an error (or,
optionally, succeeded), mass-attaching dynamic probes between the given
entry points and printing a combined, symbolized, error-annotated stack on
every failure.

Valid flag options are:
       -h --help                 Show this help and exit.
       -V --version              Print version and exit.
       -v/-vv/-vvv               Verbose / debug / backend-debug logs.
       -c NAME                   Apply preset glob bundle (bpf, perf).
       -e GLOB|@FILE|:CU         Add an entry glob (repeatable).
       -a GLOB|@FILE|:CU         Add an allow glob (repeatable).
       -d GLOB|@FILE|:CU         Add a deny glob (repeatable).
       -p/-P PID                 Allow/deny process id (repeatable).
       -n/-N COMM                Allow/deny process name, <=15 chars
                                 (repeatable).
       -L MS                     Emit only stacks with total latency >= MS.
       -S                        Emit successful stacks too.
       -A                        Emit intermediate (non-final) stacks.
       -x/-X ERRNAME             Allow/deny error, e.g. -ENOENT or ENOENT
                                 (repeatable).
       -s/-ss/-sn                Symbolization: line-info / +inlines / none.
       -k PATH                   Path to debug image for symbolization.
       -M/-K/-F                  Multi-probe / single-probe / fentry attach
                                 mode (mutually exclusive).
       --lbr                     Enable branch-stack (LBR) capture.
       --full-stacks             Disable artifact filtering.
       --stacks-map-size N       Backend stack map capacity.
       --dry-run                 Plan and validate; do not attach.

More information on the %[1]s repository:
       https://github.com/mna/retsnoop
`, binName)
)

// Cmd is the flag-tagged command struct mainer.Parser fills in from argv.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"V,version"`

	Verbose      bool `flag:"v"`
	VeryVerbose  bool `flag:"vv"`
	BackendDebug bool `flag:"vvv"`

	Preset string `flag:"c"`

	EntryGlobs []string `flag:"e,entry"`
	AllowGlobs []string `flag:"a,allow"`
	DenyGlobs  []string `flag:"d,deny"`

	AllowPIDs  []string `flag:"p"`
	DenyPIDs   []string `flag:"P"`
	AllowComms []string `flag:"n"`
	DenyComms  []string `flag:"N"`

	LongerThanMS int  `flag:"L"`
	ReportSucc   bool `flag:"S"`
	ReportIntr   bool `flag:"A"`

	AllowErrnos []string `flag:"x"`
	DenyErrnos  []string `flag:"X"`

	SymLine   bool `flag:"s"`
	SymInline bool `flag:"ss"`
	SymNone   bool `flag:"sn"`

	DebugImage string `flag:"k"`

	ModeMulti  bool `flag:"M"`
	ModeKprobe bool `flag:"K"`
	ModeFentry bool `flag:"F"`

	LBR bool `flag:"lbr"`

	FullStacks    bool `flag:"full-stacks"`
	StacksMapSize int  `flag:"stacks-map-size"`
	DryRun        bool `flag:"dry-run"`

	args  []string
	flags map[string]bool
	cfg   *config.Config
}

func (c *Cmd) SetArgs(args []string) { c.args = args }
func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

// Validate implements the mainer.Validator contract: it turns parsed flags
// into a config.Config (ConfigError on failure), per spec §7's "ConfigError
// ... abort[s] before any probe is installed".
func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	cfg, err := c.buildConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func printError(stdio mainer.Stdio, err error) error {
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
	}
	return err
}

// Main implements the entrypoint contract cmd/retsnoop calls into.
func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	log := newLogger(c.logLevel())

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := printError(stdio, c.Run(ctx, stdio, log)); err != nil {
		return mainer.Failure
	}
	return mainer.Success
}

func (c *Cmd) logLevel() int {
	switch {
	case c.BackendDebug:
		return 3
	case c.VeryVerbose:
		return 2
	case c.Verbose:
		return 1
	default:
		return 0
	}
}

func newLogger(level int) *logrus.Logger {
	log := logrus.New()
	switch {
	case level >= 3:
		log.SetLevel(logrus.TraceLevel)
	case level == 2:
		log.SetLevel(logrus.DebugLevel)
	case level == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

// attachMode resolves the mutually-exclusive -M/-K/-F flags into a
// backend.Mode, defaulting to backend.ModeAuto.
func (c *Cmd) attachMode() (backend.Mode, error) {
	n := 0
	mode := backend.ModeAuto
	if c.ModeMulti {
		n++
		mode = backend.ModeMulti
	}
	if c.ModeKprobe {
		n++
		mode = backend.ModeKprobe
	}
	if c.ModeFentry {
		n++
		mode = backend.ModeFentry
	}
	if n > 1 {
		return mode, config.Error("-M, -K and -F are mutually exclusive")
	}
	return mode, nil
}

package config

import "github.com/gravitational/trace"

// Preset is a named bundle of entry/allow/deny globs applied by the -c
// flag, per §6. Presets are looked up by name and merged into the
// user-supplied -e/-a/-d globs (they don't replace them).
type Preset struct {
	Entry []string
	Allow []string
	Deny  []string
}

// presets holds the built-in bundles. "bpf" traces the BPF syscall and
// verifier entry points; "perf" traces the perf_event subsystem. Both are
// representative slices of the real kernel surface, scoped narrowly enough
// to stay under typical attach caps without a -a/-d of their own.
var presets = map[string]Preset{
	"bpf": {
		Entry: []string{"__sys_bpf"},
		Allow: []string{"bpf_*", "__bpf_*", "btf_*"},
		Deny:  []string{"bpf_trampoline_*", "bpf_prog_*", "bpf_get_stack_raw_tp"},
	},
	"perf": {
		Entry: []string{"__se_sys_perf_event_open"},
		Allow: []string{"perf_*", "__perf_*"},
		Deny:  []string{"perf_trace_*"},
	},
}

// Lookup returns the named preset, or a ConfigError if name is unknown.
func Lookup(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, trace.Wrap(Error("unknown preset %q", name))
	}
	return p, nil
}

// Apply merges p into the config's glob lists, additively (presets never
// remove a glob the user supplied directly).
func (c *Config) Apply(p Preset) {
	c.EntryGlobs = append(c.EntryGlobs, p.Entry...)
	c.AllowGlobs = append(c.AllowGlobs, p.Allow...)
	c.DenyGlobs = append(c.DenyGlobs, p.Deny...)
}

// Package globset expands and matches the entry/allow/deny glob tokens of
// §4.1: plain globs, "@FILE" (read whitespace-separated tokens from a
// file), and ":CU" (expand to every function defined in a compile unit).
package globset

import (
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"
	"github.com/gravitational/trace"
)

// CUResolver is the narrow collaborator that expands a ":CU" token; it is
// backed by the DWARF/ELF symbol resolver, itself out of scope here.
type CUResolver interface {
	FunctionsInCompileUnit(cu string) ([]string, error)
}

// Set is a compiled set of glob patterns, matched against function names.
type Set struct {
	raw  []string
	pats []glob.Glob
}

// Compile expands every token (following "@FILE" and ":CU" indirections)
// and compiles the resulting literal globs.
func Compile(tokens []string, cu CUResolver) (*Set, error) {
	expanded, err := Expand(tokens, cu, 0)
	if err != nil {
		return nil, err
	}
	s := &Set{raw: expanded, pats: make([]glob.Glob, len(expanded))}
	for i, tok := range expanded {
		g, err := glob.Compile(tok)
		if err != nil {
			return nil, trace.BadParameter("invalid glob %q: %v", tok, err)
		}
		s.pats[i] = g
	}
	return s, nil
}

// Match reports whether any pattern in the set matches name.
func (s *Set) Match(name string) bool {
	for _, g := range s.pats {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Empty reports whether the set has no patterns at all.
func (s *Set) Empty() bool { return len(s.pats) == 0 }

// Patterns returns the expanded, pre-compile literal glob strings, e.g. for
// validating that each entry glob matched at least one function.
func (s *Set) Patterns() []string { return append([]string(nil), s.raw...) }

// Unmatched reports, for each pattern in the set, whether it failed to
// match any name in names, returning the raw pattern strings with no
// match at all. Used to enforce "every entry-glob must match >= 1
// function" (§4.1 step 6) rather than just "some entry-glob matched
// something".
func (s *Set) Unmatched(names []string) []string {
	var out []string
	for i, g := range s.pats {
		matched := false
		for _, name := range names {
			if g.Match(name) {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, s.raw[i])
		}
	}
	return out
}

const maxExpandDepth = 8

// Expand resolves "@FILE" and ":CU" tokens into literal glob strings,
// recursively (a glob file may itself contain "@other_file" tokens).
func Expand(tokens []string, cu CUResolver, depth int) ([]string, error) {
	if depth > maxExpandDepth {
		return nil, trace.BadParameter("glob expansion nested too deeply (possible cycle)")
	}
	var out []string
	for _, tok := range tokens {
		switch {
		case strings.HasPrefix(tok, "@"):
			lines, err := readGlobFile(tok[1:])
			if err != nil {
				return nil, err
			}
			more, err := Expand(lines, cu, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, more...)
		case strings.HasPrefix(tok, ":"):
			if cu == nil {
				return nil, trace.BadParameter("glob %q requires compile-unit resolution but none is available", tok)
			}
			names, err := cu.FunctionsInCompileUnit(tok[1:])
			if err != nil {
				return nil, fmt.Errorf("expand %q: %w", tok, err)
			}
			out = append(out, names...)
		default:
			out = append(out, tok)
		}
	}
	return out, nil
}

// readGlobFile reads newline/space-separated glob tokens from path.
func readGlobFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.Wrap(err, "read glob file %q", path)
	}
	return strings.Fields(string(b)), nil
}

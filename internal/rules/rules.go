// Package rules matches resource paths against include/exclude patterns.
//
// A pattern is either a glob ("textures/**/*.png", matched with '/' as the
// separator) or a regular expression prefixed with "re:" ("re:\.hdr$").
// Paths are normalized to forward slashes before matching.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

const regexpPrefix = "re:"

// Rule reports whether a path matches.
type Rule interface {
	Match(path string) bool
}

// Func adapts a predicate to a Rule.
type Func func(path string) bool

// Match calls f.
func (f Func) Match(path string) bool { return f(path) }

type globRule struct {
	pattern string
	g       glob.Glob
}

func (r globRule) Match(path string) bool {
	if r.g.Match(path) {
		return true
	}
	// Unanchored patterns also match on the base name.
	if !strings.Contains(r.pattern, "/") {
		if i := strings.LastIndexByte(path, '/'); i >= 0 {
			return r.g.Match(path[i+1:])
		}
	}
	return false
}

type regexpRule struct{ re *regexp.Regexp }

func (r regexpRule) Match(path string) bool { return r.re.MatchString(path) }

// Compile parses a single pattern.
func Compile(pattern string) (Rule, error) {
	if expr, ok := strings.CutPrefix(pattern, regexpPrefix); ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compiling rule %q: %w", pattern, err)
		}
		return regexpRule{re}, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("compiling rule %q: %w", pattern, err)
	}
	return globRule{pattern: pattern, g: g}, nil
}

// Set is an ordered list of rules; it matches when any rule matches.
// The zero Set matches nothing.
type Set []Rule

// CompileSet parses every pattern.
func CompileSet(patterns []string) (Set, error) {
	set := make(Set, 0, len(patterns))
	for _, p := range patterns {
		r, err := Compile(p)
		if err != nil {
			return nil, err
		}
		set = append(set, r)
	}
	return set, nil
}

// MustCompileSet is like CompileSet but panics on error. Intended for tests
// and static tables.
func MustCompileSet(patterns ...string) Set {
	set, err := CompileSet(patterns)
	if err != nil {
		panic(err)
	}
	return set
}

// Match reports whether any rule matches path.
func (s Set) Match(path string) bool {
	if len(s) == 0 {
		return false
	}
	path = Normalize(path)
	for _, r := range s {
		if r.Match(path) {
			return true
		}
	}
	return false
}

// Normalize converts backslashes to forward slashes.
func Normalize(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

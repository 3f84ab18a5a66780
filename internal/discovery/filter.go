package discovery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// ErrBadFilter is returned for a filter that is not "include:PAT" or
// "exclude:PAT", or whose pattern does not compile.
var ErrBadFilter = errors.New("bad filter")

type rule struct {
	pattern string
	include bool
	self    glob.Glob
	below   glob.Glob
}

// Filter decides whether a path is part of the source set. Rules are
// ordered and the last matching rule wins; a path no rule matches is not
// included.
type Filter struct {
	rules []rule
}

// NewFilter builds the default rules for the given extensions followed by
// the user filters, so user filters take precedence.
func NewFilter(filters []string, extensions []string) (*Filter, error) {
	f := &Filter{}
	if err := f.add("/", true); err != nil {
		return nil, err
	}
	if err := f.add("**/*.*", false); err != nil {
		return nil, err
	}
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if err := f.add("**/*"+ext, true); err != nil {
			return nil, err
		}
	}
	for _, spec := range filters {
		kind, pattern, ok := strings.Cut(spec, ":")
		if !ok || pattern == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadFilter, spec)
		}
		switch strings.TrimSpace(kind) {
		case "include":
			if err := f.add(strings.TrimSpace(pattern), true); err != nil {
				return nil, err
			}
		case "exclude":
			if err := f.add(strings.TrimSpace(pattern), false); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %q", ErrBadFilter, spec)
		}
	}
	return f, nil
}

// CheckFilters reports the first malformed filter, without building a
// Filter.
func CheckFilters(filters []string) error {
	_, err := NewFilter(filters, nil)
	return err
}

// add compiles pattern twice: once for the path itself and once for
// everything below it. Patterns starting with "/" are anchored at the
// source root, others match at any depth.
func (f *Filter) add(pattern string, include bool) error {
	base := strings.TrimSuffix(pattern, "/")
	if !strings.HasPrefix(pattern, "/") {
		for strings.HasPrefix(base, "**/") {
			base = strings.TrimPrefix(base, "**/")
		}
		base = "{/,/**/}" + base
	}
	self, err := glob.Compile(base, '/')
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrBadFilter, pattern, err)
	}
	below, err := glob.Compile(base+"/**", '/')
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrBadFilter, pattern, err)
	}
	f.rules = append(f.rules, rule{pattern: pattern, include: include, self: self, below: below})
	return nil
}

// Match reports whether a "/"-rooted slash path is included.
func (f *Filter) Match(path string) bool {
	for i := len(f.rules) - 1; i >= 0; i-- {
		r := f.rules[i]
		if r.self.Match(path) || r.below.Match(path) {
			return r.include
		}
	}
	return false
}

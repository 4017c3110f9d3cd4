// Package match implements the path matcher engine: a small closed family
// of predicates deciding whether a service or operation applies to a
// request path. Matchers are pure and deterministic; a nil Matcher means
// "always applies".
package match

import (
	"fmt"
	"regexp"

	"github.com/gobwas/glob"
)

// Matcher decides whether a path satisfies a matcher specification.
// Implementations must be side-effect free.
type Matcher interface {
	Match(path string) bool
}

// Matches evaluates m against path, treating a nil matcher as a match.
func Matches(path string, m Matcher) bool {
	if m == nil {
		return true
	}
	return m.Match(path)
}

type globMatcher struct {
	pattern  string
	compiled glob.Glob
}

func (m *globMatcher) Match(path string) bool {
	return m.compiled.Match(path)
}

func (m *globMatcher) String() string {
	return fmt.Sprintf("glob(%s)", m.pattern)
}

// Glob compiles a glob-style pattern (with '/' as separator) into a
// matcher. The pattern is compiled once, at registration time.
func Glob(pattern string) (Matcher, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("compile glob %q: %w", pattern, err)
	}
	return &globMatcher{pattern: pattern, compiled: g}, nil
}

// MustGlob is Glob for patterns known at compile time; it panics on a
// malformed pattern.
func MustGlob(pattern string) Matcher {
	m, err := Glob(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

type regexpMatcher struct {
	re *regexp.Regexp
}

func (m *regexpMatcher) Match(path string) bool {
	return m.re.MatchString(path)
}

func (m *regexpMatcher) String() string {
	return fmt.Sprintf("regexp(%s)", m.re)
}

// Regexp wraps a compiled regular expression as a matcher.
func Regexp(re *regexp.Regexp) Matcher {
	return &regexpMatcher{re: re}
}

type predicateMatcher struct {
	fn func(path string) bool
}

func (m *predicateMatcher) Match(path string) bool {
	return m.fn(path)
}

// Predicate wraps an arbitrary path predicate as a matcher.
func Predicate(fn func(path string) bool) Matcher {
	return &predicateMatcher{fn: fn}
}

type anyOfMatcher struct {
	children []Matcher
}

func (m *anyOfMatcher) Match(path string) bool {
	for _, child := range m.children {
		if Matches(path, child) {
			return true
		}
	}
	return false
}

// AnyOf combines matchers disjunctively: the result matches iff any child
// matches, short-circuiting on the first hit. With no children it never
// matches, which is distinct from the nil "always applies" matcher.
func AnyOf(children ...Matcher) Matcher {
	return &anyOfMatcher{children: children}
}

// Package visitor provides composable filters and travelers over the
// classfile visitor interfaces.
package visitor

import (
	"strings"
	"unicode/utf8"
)

// Matcher matches names against an ordered, comma-separated list of glob
// patterns. A pattern prefixed with '!' excludes what it matches; the first
// pattern that matches decides.
//
//	?   one character other than '/'
//	*   any run of characters other than '/'
//	**  any run of characters, separators included
type Matcher struct {
	patterns []globPattern
}

type globPattern struct {
	text   string
	negate bool
}

// NewMatcher parses a pattern list verbatim.
func NewMatcher(list string) *Matcher {
	m := &Matcher{}
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g := globPattern{text: p}
		if strings.HasPrefix(p, "!") {
			g.negate = true
			g.text = p[1:]
		}
		m.patterns = append(m.patterns, g)
	}
	return m
}

// NewClassMatcher parses a list of class name patterns, accepting dotted
// names and matching them against internal names.
func NewClassMatcher(list string) *Matcher {
	return NewMatcher(strings.ReplaceAll(list, ".", "/"))
}

// MatchAll returns a matcher that accepts every name.
func MatchAll() *Matcher {
	return NewMatcher("**")
}

// Match reports whether name is accepted by the list.
func (m *Matcher) Match(name string) bool {
	if m == nil {
		return true
	}
	for _, p := range m.patterns {
		if matchGlob(p.text, name) {
			return !p.negate
		}
	}
	return false
}

// IsLiteral reports whether the list is one pattern without wildcards, so
// that callers can look the name up directly.
func (m *Matcher) IsLiteral() (string, bool) {
	if m == nil || len(m.patterns) != 1 || m.patterns[0].negate {
		return "", false
	}
	p := m.patterns[0].text
	if strings.ContainsAny(p, "*?") {
		return "", false
	}
	return p, true
}

func (m *Matcher) String() string {
	parts := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		if p.negate {
			parts[i] = "!" + p.text
		} else {
			parts[i] = p.text
		}
	}
	return strings.Join(parts, ",")
}

func matchGlob(pattern, name string) bool {
	for len(pattern) > 0 {
		switch {
		case strings.HasPrefix(pattern, "**"):
			rest := strings.TrimLeft(pattern, "*")
			for i := 0; i <= len(name); i++ {
				if matchGlob(rest, name[i:]) {
					return true
				}
			}
			return false
		case pattern[0] == '*':
			rest := pattern[1:]
			for i := 0; i <= len(name); i++ {
				if matchGlob(rest, name[i:]) {
					return true
				}
				if i < len(name) && name[i] == '/' {
					return false
				}
			}
			return false
		case pattern[0] == '?':
			r, size := utf8.DecodeRuneInString(name)
			if size == 0 || r == '/' {
				return false
			}
			pattern, name = pattern[1:], name[size:]
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		}
	}
	return len(name) == 0
}

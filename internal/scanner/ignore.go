package scanner

import (
	"bufio"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// IgnorePattern represents a single gitignore-style pattern.
type IgnorePattern struct {
	pattern     string // Original pattern
	isNegation  bool   // True if pattern starts with !
	isDirectory bool   // True if pattern ends with /
	isAbsolute  bool   // True if pattern starts with /
	segments    []string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(pattern string) IgnorePattern {
	p := IgnorePattern{pattern: pattern}

	if strings.HasPrefix(pattern, "!") {
		p.isNegation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.isDirectory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		p.isAbsolute = true
		pattern = pattern[1:]
	}

	p.segments = strings.Split(pattern, "/")
	return p
}

// Match checks if the given slash or OS separated path matches this pattern.
// A negation pattern matches the same paths as its positive form; the
// caller decides what a match means.
//
// Directory patterns match anything below a matching directory. Other
// patterns match a trailing run of path segments, starting at the root for
// absolute patterns and anywhere otherwise.
func (p IgnorePattern) Match(name string) bool {
	segs := strings.Split(filepath.ToSlash(name), "/")

	last := len(segs) - 1
	if p.isAbsolute {
		last = 0
	}
	for start := 0; start <= last; start++ {
		if !p.isDirectory {
			if matchSegments(p.segments, segs[start:]) {
				return true
			}
			continue
		}
		for end := start + 1; end < len(segs); end++ {
			if matchSegments(p.segments, segs[start:end]) {
				return true
			}
		}
	}
	return false
}

// IsNegation returns true if this pattern is a negation pattern.
func (p IgnorePattern) IsNegation() bool {
	return p.isNegation
}

func (p IgnorePattern) String() string {
	return p.pattern
}

// matchSegments matches pattern segments against path segments. A "**"
// segment matches any number of path segments, including none; every other
// segment is matched with path.Match.
func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if ok, err := path.Match(pattern[0], segs[0]); err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}

// IgnoreList is an ordered list of patterns with gitignore semantics: the
// last matching pattern wins, so a later negation re-includes a path.
type IgnoreList []IgnorePattern

// ParseIgnoreList reads one pattern per line, skipping blank lines and
// lines starting with #.
func ParseIgnoreList(r io.Reader) (IgnoreList, error) {
	var list IgnoreList
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list = append(list, ParseIgnorePattern(line))
	}
	return list, sc.Err()
}

// Ignored reports whether the path should be skipped.
func (l IgnoreList) Ignored(name string) bool {
	ignored := false
	for _, p := range l {
		if p.Match(name) {
			ignored = !p.IsNegation()
		}
	}
	return ignored
}

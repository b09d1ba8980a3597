package query

import "strings"

// matchGlob reports whether name matches pattern, a small glob dialect
// supporting the wildcards '*' (any run, including empty) and '?' (exactly
// one rune). This is hand-rolled rather than pulled from a pack dependency:
// no example repo in the retrieval set vendors a glob library, and the
// pattern shape needed here (two wildcard kinds, no character classes, no
// path-segment semantics) is narrow enough that path/filepath.Match's
// slash/bracket handling would be the wrong tool (SPEC_FULL.md supplement
// 3).
func matchGlob(pattern, name string) bool {
	return matchRunes([]rune(pattern), []rune(name))
}

func matchRunes(pattern, name []rune) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// Collapse consecutive '*' and try every split point.
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchRunes(pattern, name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		}
	}
	return len(name) == 0
}

// NameMatches is exported for callers (e.g. the executor, tests) that want
// the glob semantics without constructing a filter node.
func NameMatches(pattern, name string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		return pattern == name
	}
	return matchGlob(pattern, name)
}

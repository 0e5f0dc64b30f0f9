package pathutil

import "strings"

// Match reports whether name (a single path segment, no "/") matches
// pattern under single-segment fnmatch semantics: '*' matches any run
// of characters, '?' matches exactly one, and '[...]' is an optional
// character class (leading '!' or '^' negates it).
//
// Dotfile rule: if name has a leading '.' and pattern does not, a
// leading '*' or '?' in pattern can never match it (exactly mirroring
// FNM_PERIOD / gitignore semantics - "*.conf" does not match ".conf").
func Match(pattern, name string) bool {
	if strings.HasPrefix(name, ".") && !strings.HasPrefix(pattern, ".") {
		if len(pattern) > 0 && (pattern[0] == '*' || pattern[0] == '?') {
			return false
		}
	}
	return matchFrom(pattern, name)
}

// matchFrom is a plain backtracking fnmatch matcher with no dotfile
// awareness; Match() applies that rule once, up front.
func matchFrom(pattern, name string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchFrom(pattern, name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		case '[':
			end := strings.IndexByte(pattern, ']')
			if end < 0 {
				if len(name) == 0 || name[0] != '[' {
					return false
				}
				pattern, name = pattern[1:], name[1:]
				continue
			}
			if len(name) == 0 {
				return false
			}
			class := pattern[1:end]
			neg := false
			if len(class) > 0 && (class[0] == '!' || class[0] == '^') {
				neg = true
				class = class[1:]
			}
			if classMatches(class, name[0]) == neg {
				return false
			}
			pattern = pattern[end+1:]
			name = name[1:]
		default:
			if len(name) == 0 || pattern[0] != name[0] {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		}
	}
	return len(name) == 0
}

func classMatches(class string, c byte) bool {
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				return true
			}
			i += 2
			continue
		}
		if class[i] == c {
			return true
		}
	}
	return false
}

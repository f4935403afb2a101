package osc

import "strings"

// maxPatternDepth bounds the matcher's recursion so a pathological pattern
// (deeply nested alternations, long wildcard runs) cannot blow the stack.
// OSC address trees are shallow in practice.
const maxPatternDepth = 128

// MatchPattern reports whether the concrete OSC address path is matched by
// the given address pattern. The pattern may contain the OSC wildcards
// '?' (one character), '*' (any run, never across '/'), '[...]' character
// classes (with '!' or '^' negation and 'a-z' ranges) and '{a,b}'
// alternation. Matching is case sensitive and '/' only ever matches '/'.
//
// A syntactically invalid pattern (unterminated class or alternation) yields
// a *PatternError.
func MatchPattern(pattern, path string) (bool, error) {
	ok, err := matchPattern(pattern, path, 0)
	if err != nil {
		if pe, isPE := err.(*PatternError); isPE && pe.Pattern == "" {
			pe.Pattern = pattern
		}
		return false, err
	}
	return ok, nil
}

// ValidatePattern checks the pattern's syntax without matching anything.
// Used by the dispatcher so an invalid pattern fails at registration time
// instead of silently never matching.
func ValidatePattern(pattern string) error {
	depth := 0
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				return &PatternError{Pattern: pattern, Reason: "unterminated character class"}
			}
			i += end + 1
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return &PatternError{Pattern: pattern, Reason: "unmatched '}'"}
			}
			depth--
		}
	}
	if depth != 0 {
		return &PatternError{Pattern: pattern, Reason: "unterminated alternation"}
	}
	return nil
}

// matchPattern consumes pattern and path left to right, backtracking over
// the ambiguous '*' lengths and '{}' alternatives.
func matchPattern(pattern, path string, depth int) (bool, error) {
	if depth > maxPatternDepth {
		return false, &PatternError{Reason: "pattern too deeply nested"}
	}

	for len(pattern) > 0 {
		switch pattern[0] {
		case '?':
			// Exactly one character, never '/'.
			if len(path) == 0 || path[0] == '/' {
				return false, nil
			}
			pattern, path = pattern[1:], path[1:]

		case '*':
			// Consecutive stars collapse to one.
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}

			// The star may cover any prefix of the current run of
			// non-'/' characters.
			run := 0
			for run < len(path) && path[run] != '/' {
				run++
			}

			if len(pattern) == 0 {
				// Trailing star: matches iff the rest of the
				// path has no '/'.
				return run == len(path), nil
			}

			for k := 0; k <= run; k++ {
				ok, err := matchPattern(pattern, path[k:], depth+1)
				if err != nil || ok {
					return ok, err
				}
			}
			return false, nil

		case '[':
			ok, rest, err := matchClass(pattern, path)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			pattern, path = rest, path[1:]

		case '{':
			alts, rest, err := splitAlternatives(pattern)
			if err != nil {
				return false, err
			}
			for _, alt := range alts {
				ok, err := matchPattern(alt+rest, path, depth+1)
				if err != nil || ok {
					return ok, err
				}
			}
			return false, nil

		default:
			if len(path) == 0 || path[0] != pattern[0] {
				return false, nil
			}
			pattern, path = pattern[1:], path[1:]
		}
	}

	// Both the pattern and the path must be fully consumed.
	return len(path) == 0, nil
}

// matchClass matches a '[...]' character class against the first path
// character and returns the pattern remainder past the closing ']'. A class
// never matches '/'.
func matchClass(pattern, path string) (matched bool, rest string, err error) {
	body := pattern[1:]
	negate := false
	if len(body) > 0 && (body[0] == '!' || body[0] == '^') {
		negate = true
		body = body[1:]
	}

	end := strings.IndexByte(body, ']')
	if end < 0 {
		return false, "", &PatternError{Reason: "unterminated character class"}
	}
	class, rest := body[:end], body[end+1:]

	if len(path) == 0 || path[0] == '/' {
		return false, rest, nil
	}

	c := path[0]
	in := false
	for i := 0; i < len(class); i++ {
		// An 'a-z' style triple denotes an inclusive range; a '-' at
		// either end of the class is a literal.
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				in = true
			}
			i += 2
			continue
		}
		if class[i] == c {
			in = true
		}
	}

	return in != negate, rest, nil
}

// splitAlternatives splits a leading '{a,b,...}' group into its alternatives
// and the pattern remainder after the closing '}'. Commas inside nested
// groups are left alone; an empty alternative is allowed and matches the
// empty string.
func splitAlternatives(pattern string) (alts []string, rest string, err error) {
	depth := 0
	start := 1
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				alts = append(alts, pattern[start:i])
				return alts, pattern[i+1:], nil
			}
		case ',':
			if depth == 1 {
				alts = append(alts, pattern[start:i])
				start = i + 1
			}
		}
	}
	return nil, "", &PatternError{Reason: "unterminated alternation"}
}

// Package links pulls URLs out of free-form text and feeds them to the intake queue.
package links

import (
	"net/url"
	"strings"
	"unicode"
)

// terminators end a match when they appear after an "http" start. Whitespace
// and end of line are handled separately.
var terminators = []string{`"`, "[/URL]", "'][", "][", "[/img]"}

// Extract returns every URL found in line, in order of appearance. Lines whose
// first non-blank character is '#' are comments and yield nothing. Matches that
// fail to parse are dropped.
func Extract(line string) []*url.URL {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return nil
	}
	var out []*url.URL
	rest := line
	for {
		start := strings.Index(rest, "http")
		if start < 0 {
			return out
		}
		rest = rest[start:]
		end := matchEnd(rest)
		raw := strings.ReplaceAll(rest[:end], ".md.", ".")
		rest = rest[end:]
		if u, ok := parse(raw); ok {
			out = append(out, u)
		}
	}
}

// matchEnd finds the shortest prefix of s that is followed by a terminator.
func matchEnd(s string) int {
	for i, r := range s {
		if unicode.IsSpace(r) {
			return i
		}
		for _, term := range terminators {
			if strings.HasPrefix(s[i:], term) {
				return i
			}
		}
	}
	return len(s)
}

func parse(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u, true
}

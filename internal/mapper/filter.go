package mapper

import "strings"

// HostFilter applies the skip and only host selections.
type HostFilter struct {
	skip []string
	only []string
}

// NewHostFilter lowercases and drops empty patterns.
func NewHostFilter(skip, only []string) HostFilter {
	return HostFilter{skip: normalize(skip), only: normalize(only)}
}

// Skip reports whether host is excluded. Skip patterns are checked first; a
// non-empty only list then requires the host to contain at least one entry.
func (f HostFilter) Skip(host string) bool {
	host = strings.ToLower(host)
	for _, pattern := range f.skip {
		if strings.Contains(host, pattern) {
			return true
		}
	}
	if len(f.only) == 0 {
		return false
	}
	for _, pattern := range f.only {
		if strings.Contains(host, pattern) {
			return false
		}
	}
	return true
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

package path

import "strings"

// Matches reports whether p matches the watch pattern per the three
// recognized forms:
//
//	exact:      matches only itself
//	base/*:     matches paths with prefix base/ whose remainder has no "/"
//	base/**:    matches any path with prefix base/, any remainder depth
func Matches(pattern, p string) bool {
	if strings.HasSuffix(pattern, "/**") {
		base := strings.TrimSuffix(pattern, "/**")
		prefix := base + "/"
		if base == "" {
			prefix = "/"
		}
		return strings.HasPrefix(p, prefix)
	}
	if strings.HasSuffix(pattern, "/*") {
		base := strings.TrimSuffix(pattern, "/*")
		prefix := base + "/"
		if base == "" {
			prefix = "/"
		}
		if !strings.HasPrefix(p, prefix) {
			return false
		}
		rest := p[len(prefix):]
		return rest != "" && !strings.Contains(rest, "/")
	}
	return pattern == p
}

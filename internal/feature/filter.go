package feature

import "regexp"

// DefaultFeature is requested when none of the asked for features survive
// filtering.
const DefaultFeature = "core"

var validName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FilterNames returns the names that are safe to place in a URL path segment,
// in their original order.
func FilterNames(names []string) []string {
	filtered := make([]string, 0, len(names))
	for _, name := range names {
		if validName.MatchString(name) {
			filtered = append(filtered, name)
		}
	}
	return filtered
}

// NamesOrDefault filters names and falls back to DefaultFeature when nothing
// is left.
func NamesOrDefault(names []string) []string {
	filtered := FilterNames(names)
	if len(filtered) == 0 {
		return []string{DefaultFeature}
	}
	return filtered
}

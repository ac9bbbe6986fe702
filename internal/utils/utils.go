package utils

import (
	"regexp"
	"strings"
)

// HostMatcher compiles a case insensitive matcher for hosts. A leading "*."
// matches one or more subdomain labels. Blank entries are ignored; with none
// left the matcher is nil.
func HostMatcher(hosts []string) *regexp.Regexp {
	var buffer strings.Builder
	var joiner rune

	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		if joiner != 0 {
			buffer.WriteRune(joiner)
		}
		if rest, ok := strings.CutPrefix(host, "*."); ok {
			buffer.WriteString(`(?:[a-z0-9-]+\.)+`)
			host = rest
		}
		buffer.WriteString(regexp.QuoteMeta(host))
		joiner = '|'
	}

	if buffer.Len() == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)^(?:` + buffer.String() + `)$`)
}

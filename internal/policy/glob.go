package policy

import (
	"regexp"
	"strings"
)

// compileGlob turns a naive glob pattern into an anchored regexp: `*`
// matches any run of characters (no directory semantics), all other regex
// metacharacters are escaped first. This is a deliberately simple
// translation, not full shell-style globbing — see the glob semantics note
// in the design ledger for why a real wildcard library is not used here.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")
	return regexp.Compile("^" + escaped + "$")
}

// matchesAny reports whether value matches any of the glob patterns. A
// pattern that fails to compile is skipped rather than treated as a fatal
// error, since Policy is assumed pre-validated configuration.
func matchesAny(value string, patterns []string) bool {
	for _, p := range patterns {
		re, err := compileGlob(p)
		if err != nil {
			continue
		}
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// matchesDomain additionally treats a pattern of the form "*.x.y" as
// matching the bare domain "x.y", per spec §4.2.
func matchesDomain(domain string, patterns []string) bool {
	if matchesAny(domain, patterns) {
		return true
	}
	for _, p := range patterns {
		if strings.HasPrefix(p, "*.") && p[2:] == domain {
			return true
		}
	}
	return false
}

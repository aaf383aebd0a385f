package privilege

import (
	"regexp"
	"strings"
	"sync"
)

// compiled wildcard patterns, keyed by the raw pattern string
var patternCache sync.Map

// Matches reports whether candidate satisfies pattern. Both are dot-segmented
// privilege slugs. A pattern without '*' matches only by exact, case-sensitive
// equality. A pattern with '*' is translated to an anchored regular expression
// where '.' is a literal and each '*' matches any run of characters.
//
// The translation is deliberately permissive: '*' becomes '.*', so "users.*"
// also matches "users.profile.edit" across segment boundaries. Callers that
// need single-segment semantics must encode them in the catalog.
func Matches(pattern, candidate string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == candidate
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(candidate)
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// IsWildcardSlug reports whether slug denotes a wildcard privilege.
func IsWildcardSlug(slug string) bool { return strings.Contains(slug, "*") }

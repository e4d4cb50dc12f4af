// Package allowlist builds word-boundary matchers from catalog identifiers
// and decides which candidate URLs are eligible for transfer.
package allowlist

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Allowlist holds the compiled matchers for one run. It is immutable after
// Build and safe for concurrent use.
type Allowlist struct {
	matchers []*regexp.Regexp
}

// Build compiles one matcher per identifier variant. Identifiers containing a
// slash also match with the slash removed or replaced by an underscore, and
// three-segment identifiers additionally match as first+last segment joined
// with and without an underscore. An empty input yields an allowlist that
// rejects everything.
func Build(raw []string) *Allowlist {
	seen := make(map[string]struct{})
	var matchers []*regexp.Regexp
	for _, id := range raw {
		for _, v := range variants(id) {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			matchers = append(matchers, compileBoundary(v))
		}
	}
	return &Allowlist{matchers: matchers}
}

// Len reports how many distinct matchers were compiled.
func (a *Allowlist) Len() int {
	return len(a.matchers)
}

// Allowed reports whether the URL's final path segment or the full URL
// matches any identifier variant. Matching is a pure OR and short-circuits
// on the first hit.
func (a *Allowlist) Allowed(rawURL string) bool {
	if len(a.matchers) == 0 {
		return false
	}
	name := FinalSegment(rawURL)
	for _, m := range a.matchers {
		if m.MatchString(name) || m.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// FinalSegment returns the last path segment of a URL, with surrounding
// slashes trimmed. Falls back to treating the raw string as a path when it
// does not parse as a URL.
func FinalSegment(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	if u, err := url.Parse(trimmed); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(trimmed)
}

func variants(id string) []string {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	out := []string{id}
	if strings.Contains(id, "/") {
		out = append(out,
			strings.ReplaceAll(id, "/", "_"),
			strings.ReplaceAll(id, "/", ""),
		)
		if parts := strings.Split(id, "/"); len(parts) == 3 {
			out = append(out, parts[0]+"_"+parts[2], parts[0]+parts[2])
		}
	}
	return out
}

// compileBoundary builds a case-insensitive pattern that matches the variant
// only when no alphanumeric character is adjacent on either side. RE2 has no
// lookaround, so the boundary is expressed with consuming character classes
// anchored by the alternation with ^ and $.
func compileBoundary(variant string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|[^a-z0-9])` + regexp.QuoteMeta(variant) + `([^a-z0-9]|$)`)
}

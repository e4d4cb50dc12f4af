// Package classify partitions the anchors of a listing or detail page into
// direct artifact links, external detail links, and noise.
package classify

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cna-research/geoharvest/internal/allowlist"
)

// Kind labels a candidate link.
type Kind int

// Candidate kinds. Anchors matching neither rule are dropped before they
// become candidates.
const (
	DirectArtifact Kind = iota
	ExternalDetail
)

// Candidate is a resolved absolute URL extracted from one page. It only
// lives for the duration of that page's processing.
type Candidate struct {
	URL  string
	Kind Kind
}

// Classifier applies the two-rule partition using a fixed extension set,
// external prefix, and allowlist.
type Classifier struct {
	extensions []string
	prefix     string
	allow      *allowlist.Allowlist
}

// New builds a Classifier. Extensions are normalized to lower case with a
// leading dot.
func New(extensions []string, externalPrefix string, allow *allowlist.Allowlist) *Classifier {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return &Classifier{extensions: normalized, prefix: externalPrefix, allow: allow}
}

// Classify extracts every anchor from markup, resolves hrefs against baseURL,
// and returns the candidates in document order. Rule precedence per anchor:
// artifact extension first, then external prefix + allowlist. Unparseable
// markup degrades to zero candidates.
func (c *Classifier) Classify(markup, baseURL string) []Candidate {
	var out []Candidate
	c.eachAnchor(markup, baseURL, func(full string) {
		switch {
		case c.hasArtifactExt(full):
			out = append(out, Candidate{URL: full, Kind: DirectArtifact})
		case c.prefix != "" && strings.HasPrefix(full, c.prefix) && c.allow.Allowed(full):
			out = append(out, Candidate{URL: full, Kind: ExternalDetail})
		}
	})
	return out
}

// DetailArtifacts is the restricted second pass over an external detail
// page's own markup: artifact-extension anchors only, no further recursion.
func (c *Classifier) DetailArtifacts(markup, detailURL string) []string {
	var out []string
	c.eachAnchor(markup, detailURL, func(full string) {
		if c.hasArtifactExt(full) {
			out = append(out, full)
		}
	})
	return out
}

func (c *Classifier) eachAnchor(markup, baseURL string, fn func(full string)) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return
	}
	base, baseErr := url.Parse(baseURL)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		fn(resolve(base, baseErr == nil, href))
	})
}

func (c *Classifier) hasArtifactExt(full string) bool {
	lower := strings.ToLower(full)
	if u, err := url.Parse(full); err == nil && u.Path != "" {
		lower = strings.ToLower(u.Path)
	}
	for _, ext := range c.extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, haveBase bool, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !haveBase {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

package classify

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var goPageRE = regexp.MustCompile(`goPage\(\s*(\d+)`)

// LastPage reads the listing's "last page" control: the anchor wrapping the
// last.gif image carries a goPage(N, ...) href whose first argument is the
// total page count. Returns 1 when the control is absent or unreadable,
// matching a single-page result set.
func LastPage(markup string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return 1
	}
	total := 1
	doc.Find("img[src*='last.gif']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Parent().Attr("href")
		if !ok {
			return true
		}
		m := goPageRE.FindStringSubmatch(href)
		if m == nil {
			return true
		}
		if n, convErr := strconv.Atoi(m[1]); convErr == nil && n >= 1 {
			total = n
			return false
		}
		return true
	})
	return total
}

// NextHref resolves the "next" navigation control's target URL against
// baseURL. The control is the anchor wrapping the next.gif image. Returns
// false when the control is missing or carries no usable href.
func NextHref(markup, baseURL string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", false
	}
	href, found := "", false
	doc.Find("img[src*='next.gif']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw, ok := sel.Parent().Attr("href")
		if !ok || strings.TrimSpace(raw) == "" {
			return true
		}
		if strings.HasPrefix(strings.ToLower(raw), "javascript:") {
			return true
		}
		href, found = raw, true
		return false
	})
	if !found {
		return "", false
	}
	base, baseErr := url.Parse(baseURL)
	if baseErr != nil {
		return href, true
	}
	ref, refErr := url.Parse(href)
	if refErr != nil {
		return href, true
	}
	return base.ResolveReference(ref).String(), true
}

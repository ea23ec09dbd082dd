package filter

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
)

// MarkerSponsorDetector recognises promoted listings by marker attributes on
// descendants or by the localized "Sponsored" label appearing as a whole word.
type MarkerSponsorDetector struct {
	label  string
	tokens []string
	word   *regexp.Regexp
}

func NewMarkerSponsorDetector(label string, tokens ...string) *MarkerSponsorDetector {
	fold := cases.Fold()
	folded := make([]string, len(tokens))
	for i, t := range tokens {
		folded[i] = fold.String(t)
	}
	return &MarkerSponsorDetector{
		label:  fold.String(label),
		tokens: folded,
		// \p{Z} covers the non-breaking spaces marketplaces like to put around labels.
		word: regexp.MustCompile(`(?i)(?:^|[\s\p{Z}])` + regexp.QuoteMeta(label) + `(?:[\s\p{Z}]|$)`),
	}
}

func (d *MarkerSponsorDetector) IsSponsored(listing *goquery.Selection) bool {
	fold := cases.Fold()
	found := false
	listing.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if v, ok := el.Attr("aria-label"); ok && strings.Contains(fold.String(v), d.label) {
			found = true
			return false
		}
		for _, attr := range []string{"data-testid", "class"} {
			v, ok := el.Attr(attr)
			if !ok {
				continue
			}
			fv := fold.String(v)
			for _, tok := range d.tokens {
				if strings.Contains(fv, tok) {
					found = true
					return false
				}
			}
		}
		return true
	})
	if found {
		return true
	}
	return d.word.MatchString(listing.Text())
}

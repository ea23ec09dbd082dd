// Package filter decides which search-result listings qualify and holds the
// marketplace-specific strategies used to find listings, ratings and pagination.
package filter

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"offer-filter/pkg/models"
)

// ListingLocator finds result cards and the title link inside a card.
type ListingLocator interface {
	ListingSelector() string
	TitleSelector() string
}

// RatingExtractor reads the reviewer rating from a listing.
// It returns ErrNoRating or ErrUnparsableRating when the data is missing or malformed.
type RatingExtractor interface {
	ExtractRating(listing *goquery.Selection) (Rating, error)
}

type SponsorDetector interface {
	IsSponsored(listing *goquery.Selection) bool
}

// PageLocator finds pagination controls and the current page number.
type PageLocator interface {
	// NextPageSelectors are tried in order; the first one that matches wins.
	NextPageSelectors() []string
	CurrentPageSelector() string
	PageFromURL(rawURL string) (int, bool)
}

// Profile bundles the strategies for one marketplace's markup and locale.
type Profile struct {
	Marketplace models.Marketplace
	Listings    ListingLocator
	Rating      RatingExtractor
	Sponsor     SponsorDetector
	Pages       PageLocator
}

type selectorLocator struct {
	listing string
	title   string
}

func (l selectorLocator) ListingSelector() string { return l.listing }
func (l selectorLocator) TitleSelector() string   { return l.title }

type queryPageLocator struct {
	next    []string
	current string
	param   *regexp.Regexp
}

func (p queryPageLocator) NextPageSelectors() []string { return p.next }
func (p queryPageLocator) CurrentPageSelector() string { return p.current }

func (p queryPageLocator) PageFromURL(rawURL string) (int, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return 0, false
	}
	m := p.param.FindStringSubmatch("?" + u.RawQuery)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

var leadingDigits = regexp.MustCompile(`^\s*(\d+)`)

// ParsePageNumber reads the page number at the start of an indicator's text.
func ParsePageNumber(text string) (int, bool) {
	m := leadingDigits.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// AllegroProfile matches allegro.pl search results (Polish locale).
func AllegroProfile() Profile {
	return Profile{
		Marketplace: models.Allegro,
		Listings: selectorLocator{
			listing: strings.Join([]string{`[class*="_1e32a_ENO3Q"]`, `.mqen_m6.mjyo_6x.mgmw_3z.mpof_ki`}, ", "),
			title:   "h2 a",
		},
		Rating: NewLabelRatingExtractor(
			`[role="group"][aria-label*="na 5"]`,
			`([\d,]+)[\s\p{Z}]+na[\s\p{Z}]+5,[\s\p{Z}]+(\d+)[\s\p{Z}]+ocen`,
		),
		Sponsor: NewMarkerSponsorDetector("Sponsorowane", "sponsor"),
		Pages: queryPageLocator{
			next:    []string{`[data-role="next-page"]`, `[rel="next"]`, `a[aria-label*="następna"]`},
			current: `[aria-current="page"]`,
			param:   regexp.MustCompile(`[?&]p=(\d+)`),
		},
	}
}

// ProfileFor returns the profile for m. Allegro is the only supported marketplace
// and is also used as the fallback.
func ProfileFor(m models.Marketplace) Profile {
	switch m {
	case models.Allegro:
		return AllegroProfile()
	default:
		return AllegroProfile()
	}
}

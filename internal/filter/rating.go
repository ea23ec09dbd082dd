package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrNoRating         = errors.New("rating group not found")
	ErrUnparsableRating = errors.New("rating label not understood")
)

type Rating struct {
	Score    float64
	Opinions int
}

// Badge is the text appended to a qualifying listing's title, e.g. "🏆 4.95/5 (150)".
func (r Rating) Badge() string {
	return fmt.Sprintf("🏆 %s/5 (%d)", strconv.FormatFloat(r.Score, 'f', -1, 64), r.Opinions)
}

// LabelRatingExtractor reads the rating from the accessible label of a rating group.
// The pattern's first group is the score with a comma decimal separator, the
// second the number of opinions.
type LabelRatingExtractor struct {
	groupSelector string
	pattern       *regexp.Regexp
}

func NewLabelRatingExtractor(groupSelector, pattern string) *LabelRatingExtractor {
	return &LabelRatingExtractor{
		groupSelector: groupSelector,
		pattern:       regexp.MustCompile(pattern),
	}
}

func (e *LabelRatingExtractor) ExtractRating(listing *goquery.Selection) (Rating, error) {
	group := listing.Find(e.groupSelector).First()
	if group.Length() == 0 {
		return Rating{}, ErrNoRating
	}
	label, _ := group.Attr("aria-label")
	return e.ParseLabel(label)
}

func (e *LabelRatingExtractor) ParseLabel(label string) (Rating, error) {
	m := e.pattern.FindStringSubmatch(label)
	if m == nil {
		return Rating{}, fmt.Errorf("%w: %q", ErrUnparsableRating, label)
	}
	score, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return Rating{}, fmt.Errorf("%w: score %q", ErrUnparsableRating, m[1])
	}
	opinions, err := strconv.Atoi(m[2])
	if err != nil {
		return Rating{}, fmt.Errorf("%w: opinions %q", ErrUnparsableRating, m[2])
	}
	return Rating{Score: score, Opinions: opinions}, nil
}

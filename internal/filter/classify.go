package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"offer-filter/pkg/models"
)

// Criteria are the thresholds a listing has to beat.
type Criteria struct {
	MinRating     float64
	MinOpinions   int
	HideSponsored bool
}

// Qualifies compares strictly: a rating equal to the threshold does not qualify.
func (c Criteria) Qualifies(r Rating) bool {
	return r.Score > c.MinRating && r.Opinions > c.MinOpinions
}

type Reason int

const (
	Qualified Reason = iota
	Sponsored
	NoRating
	UnparsableRating
	BelowThreshold
	Failed
)

func (r Reason) String() string {
	switch r {
	case Qualified:
		return "qualified"
	case Sponsored:
		return "sponsored"
	case NoRating:
		return "no-rating"
	case UnparsableRating:
		return "unparsable-rating"
	case BelowThreshold:
		return "below-threshold"
	default:
		return "failed"
	}
}

type Decision struct {
	Keep   bool
	Reason Reason
	Rating Rating
}

type Classifier struct {
	Profile Profile
}

func NewClassifier(p Profile) *Classifier {
	return &Classifier{Profile: p}
}

// Classify decides a listing from its HTML snapshot. An error means the snapshot
// itself could not be read; the returned decision then hides the listing.
func (c *Classifier) Classify(listing models.Listing, crit Criteria) (Decision, error) {
	root, err := parseListing(listing.HTML)
	if err != nil {
		return Decision{Reason: Failed}, err
	}
	return c.ClassifySelection(root, crit), nil
}

func (c *Classifier) ClassifySelection(root *goquery.Selection, crit Criteria) Decision {
	if crit.HideSponsored && c.Profile.Sponsor.IsSponsored(root) {
		return Decision{Reason: Sponsored}
	}

	rating, err := c.Profile.Rating.ExtractRating(root)
	switch {
	case errors.Is(err, ErrNoRating):
		return Decision{Reason: NoRating}
	case err != nil:
		return Decision{Reason: UnparsableRating}
	}

	if !crit.Qualifies(rating) {
		return Decision{Reason: BelowThreshold, Rating: rating}
	}
	return Decision{Keep: true, Reason: Qualified, Rating: rating}
}

func parseListing(snapshot string) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	root := doc.Find("body").Children().First()
	if root.Length() == 0 {
		return nil, errors.New("parse listing: empty snapshot")
	}
	return root, nil
}

package filter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"offer-filter/pkg/models"
)

const ratedListing = `<article class="mqen_m6 mjyo_6x mgmw_3z mpof_ki">
	<h2><a href="/oferta/1">Słuchawki</a></h2>
	<div role="group" aria-label="%s"></div>
</article>`

func listing(label string) models.Listing {
	return models.Listing{ID: 1, HTML: fmt.Sprintf(ratedListing, label)}
}

func TestParseLabel(t *testing.T) {
	ex := AllegroProfile().Rating.(*LabelRatingExtractor)

	tests := []struct {
		label    string
		score    float64
		opinions int
		wantErr  bool
	}{
		{label: "4,95 na 5, 150 ocen", score: 4.95, opinions: 150},
		{label: "5 na 5, 7 ocen", score: 5, opinions: 7},
		{label: "4,8 na 5, 500 ocen", score: 4.8, opinions: 500},
		{label: "4.95 out of 5, 150 ratings", wantErr: true},
		{label: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			r, err := ex.ParseLabel(tt.label)
			if tt.wantErr {
				if !errors.Is(err, ErrUnparsableRating) {
					t.Fatalf("Expected ErrUnparsableRating, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if r.Score != tt.score || r.Opinions != tt.opinions {
				t.Errorf("Expected %v/%d, got %v/%d", tt.score, tt.opinions, r.Score, r.Opinions)
			}
		})
	}
}

func TestClassify_Thresholds(t *testing.T) {
	c := NewClassifier(AllegroProfile())
	crit := Criteria{MinRating: 4.9, MinOpinions: 100}

	tests := []struct {
		name   string
		label  string
		keep   bool
		reason Reason
	}{
		{name: "above both", label: "4,95 na 5, 150 ocen", keep: true, reason: Qualified},
		{name: "rating below", label: "4,8 na 5, 500 ocen", reason: BelowThreshold},
		{name: "rating equal", label: "4,9 na 5, 500 ocen", reason: BelowThreshold},
		{name: "opinions equal", label: "4,95 na 5, 100 ocen", reason: BelowThreshold},
		{name: "garbled label", label: "brak ocen na 5", reason: UnparsableRating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := c.Classify(listing(tt.label), crit)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if d.Keep != tt.keep || d.Reason != tt.reason {
				t.Errorf("Expected keep=%v reason=%s, got keep=%v reason=%s", tt.keep, tt.reason, d.Keep, d.Reason)
			}
		})
	}
}

func TestClassify_NoRatingGroup(t *testing.T) {
	c := NewClassifier(AllegroProfile())
	d, err := c.Classify(models.Listing{HTML: `<article><h2><a>Bez ocen</a></h2></article>`}, Criteria{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if d.Keep || d.Reason != NoRating {
		t.Errorf("Expected hidden with no-rating, got %+v", d)
	}
}

func TestClassify_EmptySnapshotFails(t *testing.T) {
	c := NewClassifier(AllegroProfile())
	d, err := c.Classify(models.Listing{HTML: ""}, Criteria{})
	if err == nil {
		t.Fatal("Expected an error for an empty snapshot")
	}
	if d.Keep {
		t.Error("A failed classification must not keep the listing")
	}
}

func TestClassify_Sponsored(t *testing.T) {
	c := NewClassifier(AllegroProfile())
	crit := Criteria{MinRating: 4.0, MinOpinions: 10, HideSponsored: true}

	tests := []struct {
		name string
		html string
		want bool
	}{
		{
			name: "aria label",
			html: `<article><span aria-label="SPONSOROWANE oferta"></span><div role="group" aria-label="5 na 5, 999 ocen"></div></article>`,
			want: true,
		},
		{
			name: "class token",
			html: `<article><div class="x-Sponsor-badge"></div><div role="group" aria-label="5 na 5, 999 ocen"></div></article>`,
			want: true,
		},
		{
			name: "data-testid",
			html: `<article><div data-testid="listing-sponsored"></div><div role="group" aria-label="5 na 5, 999 ocen"></div></article>`,
			want: true,
		},
		{
			name: "whole word text",
			html: `<article><p>Sponsorowane</p><div role="group" aria-label="5 na 5, 999 ocen"></div></article>`,
			want: true,
		},
		{
			name: "word inside another word",
			html: `<article><p>Niesponsorowanedzisiaj</p><div role="group" aria-label="5 na 5, 999 ocen"></div></article>`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := c.Classify(models.Listing{HTML: tt.html}, crit)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if got := d.Reason == Sponsored; got != tt.want {
				t.Errorf("Expected sponsored=%v, got decision %+v", tt.want, d)
			}
		})
	}

	// Sponsored-hiding off: the same listing is judged on its rating.
	crit.HideSponsored = false
	d, _ := c.Classify(models.Listing{HTML: tests[0].html}, crit)
	if !d.Keep {
		t.Errorf("Expected sponsored listing to be kept when hiding is off, got %+v", d)
	}
}

func TestRatingBadge(t *testing.T) {
	if got := (Rating{Score: 4.95, Opinions: 150}).Badge(); got != "🏆 4.95/5 (150)" {
		t.Errorf("Badge mismatch, got %q", got)
	}
	if got := (Rating{Score: 5, Opinions: 3}).Badge(); got != "🏆 5/5 (3)" {
		t.Errorf("Badge mismatch, got %q", got)
	}
}

func TestPageLocator(t *testing.T) {
	pages := AllegroProfile().Pages

	if n, ok := pages.PageFromURL("https://allegro.pl/listing?string=x&p=4"); !ok || n != 4 {
		t.Errorf("Expected page 4, got %d (%v)", n, ok)
	}
	if _, ok := pages.PageFromURL("https://allegro.pl/listing?string=x&pp=4"); ok {
		t.Error("pp= must not be read as a page number")
	}
	if n, ok := ParsePageNumber(" 12 z 40"); !ok || n != 12 {
		t.Errorf("Expected 12, got %d (%v)", n, ok)
	}
}

func TestInDomainFilter(t *testing.T) {
	f, err := NewInDomainFilter("https://www.allegro.pl/listing?string=x")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !f.Filter("https://allegro.pl/listing?p=2") || !f.Filter("https://www.allegro.pl/x") {
		t.Error("Same-site links should pass")
	}
	if f.Filter("https://evil-allegro.pl.example.com/") {
		t.Error("Foreign hosts must not pass")
	}
}

func TestDomainManager_RobotsAndRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dm := NewDomainManager("OfferFilter/1.0", time.Hour)
	ctx := context.Background()

	if !dm.IsAllowed(ctx, srv.URL+"/listing?p=2") {
		t.Error("Expected /listing to be allowed")
	}
	if dm.IsAllowed(ctx, srv.URL+"/private/page") {
		t.Error("Expected /private to be disallowed")
	}

	if d := dm.Delay(srv.URL + "/listing?p=2"); d != 0 {
		t.Errorf("First advance should not wait, got %s", d)
	}
	if d := dm.Delay(srv.URL + "/listing?p=3"); d <= 0 {
		t.Error("Second advance within the interval should wait")
	}
}

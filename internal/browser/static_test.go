package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"offer-filter/pkg/models"
)

const rawHTML = `
	<!DOCTYPE html>
	<html>
	<head><title>Wyniki</title></head>
	<body>
		<section id="results">
			<article class="offer"><h2><a href="/oferta/1">Pierwsza</a></h2></article>
			<article class="offer" style="color:red"><h2><a href="/oferta/2">Druga</a></h2></article>
		</section>
		<nav>
			<span aria-current="page">1</span>
			<a rel="next" href="/listing?p=2">Dalej</a>
		</nav>
	</body>
	</html>
`

func newPage(t *testing.T) *StaticPage {
	t.Helper()
	p, err := NewStaticPage(strings.NewReader(rawHTML), "https://allegro.pl/listing?string=x")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return p
}

func TestStaticPage_ListingsHaveStableIDs(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()

	first, err := p.Listings(ctx, "article.offer")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("Expected 2 listings, got %d", len(first))
	}
	if !strings.Contains(first[0].HTML, "Pierwsza") {
		t.Errorf("Snapshot should contain the card markup, got %q", first[0].HTML)
	}

	if err := p.Append("#results", `<article class="offer"><h2><a>Trzecia</a></h2></article>`); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second, _ := p.Listings(ctx, "article.offer")
	if len(second) != 3 {
		t.Fatalf("Expected 3 listings, got %d", len(second))
	}
	if second[0].ID != first[0].ID || second[1].ID != first[1].ID {
		t.Error("Existing listings must keep their ids")
	}
	if second[2].ID == first[0].ID || second[2].ID == first[1].ID {
		t.Error("A new listing must get a fresh id")
	}
}

func TestStaticPage_HideAndDecorate(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()
	listings, _ := p.Listings(ctx, "article.offer")
	second := listings[1].ID

	if err := p.SetHidden(ctx, second, true); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !p.IsHidden(second) {
		t.Error("Listing should be hidden")
	}
	p.SetHidden(ctx, second, false)
	if p.IsHidden(second) {
		t.Error("Listing should be visible again")
	}
	out, _ := p.HTML()
	if !strings.Contains(out, `style="color:red"`) {
		t.Error("Unhiding must keep the card's own style")
	}

	p.Decorate(ctx, second, "h2 a", "🏆 5/5 (9)")
	p.Decorate(ctx, second, "h2 a", "🏆 5/5 (9)")
	if badges := p.Badges(second); len(badges) != 1 || badges[0] != "🏆 5/5 (9)" {
		t.Errorf("Expected exactly one badge, got %v", badges)
	}

	p.Undecorate(ctx, second, "h2 a")
	if badges := p.Badges(second); len(badges) != 0 {
		t.Errorf("Expected badges removed, got %v", badges)
	}
}

func TestStaticPage_FindResolvesHref(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()

	next, ok, err := p.Find(ctx, `[rel="next"]`)
	if err != nil || !ok {
		t.Fatalf("Expected next control, got ok=%v err=%v", ok, err)
	}
	if next.Href != "https://allegro.pl/listing?p=2" {
		t.Errorf("Href mismatch.\nExpected: %s\nGot:      %s", "https://allegro.pl/listing?p=2", next.Href)
	}

	text, ok, _ := p.Text(ctx, `[aria-current="page"]`)
	if !ok || text != "1" {
		t.Errorf("Expected indicator text 1, got %q (%v)", text, ok)
	}

	if _, ok, _ := p.Find(ctx, `[data-role="next-page"]`); ok {
		t.Error("Expected no match")
	}
}

func TestStaticPage_LoadInvalidatesIDs(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()
	listings, _ := p.Listings(ctx, "article.offer")

	var clicked models.NodeID
	p.OnClick = func(id models.NodeID) {
		clicked = id
		p.Load(strings.NewReader(rawHTML), "https://allegro.pl/listing?p=2")
	}
	next, _, _ := p.Find(ctx, `[rel="next"]`)
	if err := p.Click(ctx, next.ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if clicked != next.ID {
		t.Error("Expected click hook to run")
	}

	if err := p.SetHidden(ctx, listings[0].ID, true); !errors.Is(err, ErrStaleNode) {
		t.Errorf("Expected ErrStaleNode, got %v", err)
	}
	if loc, _ := p.Location(ctx); loc != "https://allegro.pl/listing?p=2" {
		t.Errorf("Expected new location, got %s", loc)
	}
}

func TestStaticPage_PanelAndEvents(t *testing.T) {
	p := newPage(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := p.Watch(ctx, "article.offer", `[aria-current="page"]`)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	p.ShowPanel(ctx, `<strong>Offer Filter</strong> <button `+closeAttr+`>×</button>`)
	p.ShowPanel(ctx, `<strong>Offer Filter Active</strong> <button `+closeAttr+`>×</button>`)
	text, ok := p.PanelText()
	if !ok || !strings.Contains(text, "Offer Filter Active") {
		t.Errorf("Expected updated panel, got %q (%v)", text, ok)
	}
	out, _ := p.HTML()
	if strings.Count(out, PanelID) != 1 {
		t.Error("Panel must exist once")
	}

	if !p.DismissPanel() {
		t.Fatal("Expected dismissal to be delivered")
	}
	select {
	case ev := <-events:
		if ev.Kind != models.PanelDismissed {
			t.Errorf("Expected panel-dismissed, got %s", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}

	p.RemovePanel(ctx)
	if _, ok := p.PanelText(); ok {
		t.Error("Panel should be gone")
	}

	cancel()
	if p.Emit(models.ListingsAdded) {
		t.Error("Emit after cancellation must not deliver")
	}
}

func TestFetcher_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "OfferFilter/1.0" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(rawHTML))
	}))
	defer srv.Close()

	f := NewFetcher("OfferFilter/1.0", 5*time.Second)
	p, err := f.Load(context.Background(), srv.URL+"/listing")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	next, ok, _ := p.Find(context.Background(), `[rel="next"]`)
	if !ok || next.Href != srv.URL+"/listing?p=2" {
		t.Errorf("Expected resolved next link, got %q", next.Href)
	}

	f.UserAgent = "other"
	if _, err := f.Load(context.Background(), srv.URL+"/listing"); err == nil {
		t.Error("Expected an error for a 403 response")
	}
}

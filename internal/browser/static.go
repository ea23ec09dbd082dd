package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"offer-filter/pkg/models"
)

var ErrStaleNode = errors.New("node is no longer attached to the page")

// StaticPage is a parsed HTML document that behaves like a live results page:
// listings can be hidden and decorated, the panel can be shown, and navigation
// happens when the OnClick hook loads another document.
type StaticPage struct {
	mu     sync.Mutex
	doc    *goquery.Document
	url    string
	ids    map[*html.Node]models.NodeID
	nodes  map[models.NodeID]*html.Node
	nextID models.NodeID
	clicks []models.NodeID
	watch  *staticWatch

	// OnClick runs after a control is clicked, outside the page lock.
	OnClick func(id models.NodeID)
}

type staticWatch struct {
	ctx context.Context
	ch  chan models.PageEvent
}

func NewStaticPage(r io.Reader, pageURL string) (*StaticPage, error) {
	p := &StaticPage{}
	if err := p.Load(r, pageURL); err != nil {
		return nil, err
	}
	return p, nil
}

// Load replaces the document, as a full navigation would. Node ids keep
// increasing so ids from the previous document never resolve again.
func (p *StaticPage) Load(r io.Reader, pageURL string) error {
	root, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = goquery.NewDocumentFromNode(root)
	p.url = pageURL
	p.ids = make(map[*html.Node]models.NodeID)
	p.nodes = make(map[models.NodeID]*html.Node)
	return nil
}

func (p *StaticPage) SetURL(pageURL string) {
	p.mu.Lock()
	p.url = pageURL
	p.mu.Unlock()
}

// Append adds markup to the first element matching selector, the way
// infinite scroll would.
func (p *StaticPage) Append(selector, markup string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := p.doc.Find(selector).First()
	if target.Length() == 0 {
		return fmt.Errorf("append: no element matches %q", selector)
	}
	target.AppendHtml(markup)
	return nil
}

// SetText replaces the text of every element matching selector.
func (p *StaticPage) SetText(selector, text string) {
	p.mu.Lock()
	p.doc.Find(selector).SetText(text)
	p.mu.Unlock()
}

// Emit delivers an event to the active watcher. It reports whether anyone was listening.
func (p *StaticPage) Emit(kind models.PageEventKind) bool {
	p.mu.Lock()
	w := p.watch
	p.mu.Unlock()

	if w == nil || w.ctx.Err() != nil {
		return false
	}
	select {
	case w.ch <- models.PageEvent{Kind: kind}:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// DismissPanel clicks the panel's close button.
func (p *StaticPage) DismissPanel() bool {
	p.mu.Lock()
	found := p.doc.Find(panelSelector).Find("[" + closeAttr + "]").Length() > 0
	p.mu.Unlock()
	if !found {
		return false
	}
	return p.Emit(models.PanelDismissed)
}

func (p *StaticPage) Clicks() []models.NodeID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.NodeID(nil), p.clicks...)
}

func (p *StaticPage) IsHidden(id models.NodeID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.selection(id)
	if err != nil {
		return false
	}
	for _, decl := range strings.Split(s.AttrOr("style", ""), ";") {
		if strings.TrimSpace(decl) == hiddenStyle {
			return true
		}
	}
	return false
}

// Badges returns the badge texts shown inside a listing.
func (p *StaticPage) Badges(id models.NodeID) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.selection(id)
	if err != nil {
		return nil
	}
	return s.Find("[" + badgeAttr + "]").Map(func(_ int, b *goquery.Selection) string {
		return b.Text()
	})
}

// PanelText returns the panel's text and whether the panel is present.
func (p *StaticPage) PanelText() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	panel := p.doc.Find(panelSelector)
	if panel.Length() == 0 {
		return "", false
	}
	return strings.Join(strings.Fields(panel.Text()), " "), true
}

func (p *StaticPage) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Html()
}

func (p *StaticPage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *StaticPage) Listings(ctx context.Context, selector string) ([]models.Listing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var listings []models.Listing
	var err error
	p.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		snapshot, herr := goquery.OuterHtml(s)
		if herr != nil {
			err = herr
			return false
		}
		listings = append(listings, models.Listing{ID: p.idFor(s.Get(0)), HTML: snapshot})
		return true
	})
	return listings, err
}

func (p *StaticPage) Text(ctx context.Context, selector string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.doc.Find(selector).First()
	if s.Length() == 0 {
		return "", false, nil
	}
	return s.Text(), true, nil
}

func (p *StaticPage) Find(ctx context.Context, selector string) (models.Control, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.doc.Find(selector).First()
	if s.Length() == 0 {
		return models.Control{}, false, nil
	}
	return models.Control{
		ID:   p.idFor(s.Get(0)),
		Href: resolveURL(p.url, s.AttrOr("href", "")),
	}, true, nil
}

func (p *StaticPage) SetHidden(ctx context.Context, id models.NodeID, hidden bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.selection(id)
	if err != nil {
		return err
	}

	var decls []string
	for _, decl := range strings.Split(s.AttrOr("style", ""), ";") {
		decl = strings.TrimSpace(decl)
		if decl != "" && decl != hiddenStyle {
			decls = append(decls, decl)
		}
	}
	if hidden {
		decls = append([]string{hiddenStyle}, decls...)
	}
	if len(decls) == 0 {
		s.RemoveAttr("style")
	} else {
		s.SetAttr("style", strings.Join(decls, ";"))
	}
	return nil
}

func (p *StaticPage) Decorate(ctx context.Context, id models.NodeID, titleSelector, badge string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.selection(id)
	if err != nil {
		return err
	}

	title := s.Find(titleSelector).First()
	if title.Length() == 0 || title.AttrOr(filteredAttr, "") == "true" {
		return nil
	}
	title.SetAttr(filteredAttr, "true")
	title.SetAttr("style", title.AttrOr("style", "")+titleStyle)
	title.AppendHtml(fmt.Sprintf(`<span %s="true" style="%s">%s</span>`, badgeAttr, badgeStyle, html.EscapeString(badge)))
	return nil
}

func (p *StaticPage) Undecorate(ctx context.Context, id models.NodeID, titleSelector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.selection(id)
	if err != nil {
		return err
	}

	s.Find(titleSelector).Each(func(_ int, title *goquery.Selection) {
		if title.AttrOr(filteredAttr, "") != "true" {
			return
		}
		title.RemoveAttr(filteredAttr)
		if style := strings.Replace(title.AttrOr("style", ""), titleStyle, "", 1); style == "" {
			title.RemoveAttr("style")
		} else {
			title.SetAttr("style", style)
		}
		title.Find("[" + badgeAttr + "]").Remove()
	})
	return nil
}

func (p *StaticPage) Click(ctx context.Context, id models.NodeID) error {
	p.mu.Lock()
	if _, err := p.selection(id); err != nil {
		p.mu.Unlock()
		return err
	}
	p.clicks = append(p.clicks, id)
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return nil
}

func (p *StaticPage) ShowPanel(ctx context.Context, markup string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	panel := p.doc.Find(panelSelector)
	if panel.Length() == 0 {
		body := p.doc.Find("body").First()
		if body.Length() == 0 {
			return errors.New("show panel: document has no body")
		}
		body.AppendHtml(fmt.Sprintf(`<div id="%s" style="%s"></div>`, PanelID, panelStyle))
		panel = p.doc.Find(panelSelector)
	}
	panel.SetHtml(markup)
	return nil
}

func (p *StaticPage) RemovePanel(ctx context.Context) error {
	p.mu.Lock()
	p.doc.Find(panelSelector).Remove()
	p.mu.Unlock()
	return nil
}

// Watch returns a channel fed by Emit. Page hooks are not simulated: tests
// and callers raise events explicitly.
func (p *StaticPage) Watch(ctx context.Context, listingSelector, indicatorSelector string) (<-chan models.PageEvent, error) {
	w := &staticWatch{ctx: ctx, ch: make(chan models.PageEvent, 16)}
	p.mu.Lock()
	p.watch = w
	p.mu.Unlock()
	return w.ch, nil
}

func (p *StaticPage) idFor(n *html.Node) models.NodeID {
	if id, ok := p.ids[n]; ok {
		return id
	}
	p.nextID++
	p.ids[n] = p.nextID
	p.nodes[p.nextID] = n
	return p.nextID
}

func (p *StaticPage) selection(id models.NodeID) (*goquery.Selection, error) {
	n, ok := p.nodes[id]
	if !ok || !attached(n) {
		return nil, fmt.Errorf("node %d: %w", id, ErrStaleNode)
	}
	return p.doc.FindNodes(n), nil
}

// attached reports whether n still hangs off the document root.
func attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.DocumentNode {
			return true
		}
	}
	return false
}

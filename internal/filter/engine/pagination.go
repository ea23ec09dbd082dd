package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"offer-filter/internal"
	"offer-filter/internal/filter"
	"offer-filter/internal/settings"
	"offer-filter/pkg/models"
)

type advance int

const (
	// advanceSkipped: pagination is off or a navigation is already underway.
	advanceSkipped advance = iota
	// advanceStopped: pagination ended and the panel says why.
	advanceStopped
	// advanceDeferred: the host rate limit asked for a later retry.
	advanceDeferred
	advanceClicked
)

// paginate runs after a pass that kept nothing. Attempts scheduled before a
// later pass found something are dropped.
func (e *Engine) paginate(ctx context.Context) {
	if !e.active || e.stats.Filtered > 0 || e.stats.Total == 0 {
		return
	}
	if e.goToNextPage(ctx) == advanceSkipped {
		e.updatePanel(ctx, "No qualifying offers found")
	}
}

func (e *Engine) maxPages() int {
	if e.settings.MaxPages <= 0 {
		return settings.Defaults().MaxPages
	}
	return e.settings.MaxPages
}

// goToNextPage clicks the next-page control unless pagination is exhausted.
// pagesChecked counts attempts and never exceeds maxPages.
func (e *Engine) goToNextPage(ctx context.Context) advance {
	if !e.settings.AutoPagination || e.nav.Navigating {
		return advanceSkipped
	}

	next, ok := e.nextPageControl(ctx)
	if !ok {
		e.updatePanel(ctx, "Reached end of pages")
		return advanceStopped
	}
	if e.nav.PagesChecked >= e.maxPages() {
		e.updatePanel(ctx, "Reached page limit")
		return advanceStopped
	}

	if next.Href != "" {
		if !e.opts.URLFilter.Filter(next.Href) {
			e.updatePanel(ctx, "Next page is on another site")
			return advanceStopped
		}
		if d := e.opts.Domains; d != nil {
			if e.opts.RespectRobots && !d.IsAllowed(ctx, next.Href) {
				e.updatePanel(ctx, "Next page disallowed by robots.txt")
				return advanceStopped
			}
			if wait := d.Delay(next.Href); wait > 0 {
				internal.Log.WithField("wait", wait).Debug("Page advance rate limited")
				e.after(wait, event{kind: evPaginate})
				return advanceDeferred
			}
		}
	}

	e.nav.PagesChecked++
	if e.nav.PagesChecked >= e.maxPages() {
		e.updatePanel(ctx, "Reached page limit")
		return advanceStopped
	}

	e.nav.Navigating = true
	e.updatePanel(ctx, "Searching next page…")
	if err := e.page.Click(ctx, next.ID); err != nil {
		internal.Log.WithError(err).Warn("Failed to click the next-page control")
		e.nav.Navigating = false
		e.updatePanel(ctx, "Could not open the next page")
		return advanceStopped
	}

	internal.Log.WithFields(logrus.Fields{
		"href":          next.Href,
		"pages_checked": e.nav.PagesChecked,
	}).Info("Advancing to next page")
	return advanceClicked
}

// nextPageControl returns the match of the first selector that matches anything.
func (e *Engine) nextPageControl(ctx context.Context) (control models.Control, found bool) {
	for _, sel := range e.opts.Profile.Pages.NextPageSelectors() {
		c, ok, err := e.page.Find(ctx, sel)
		if err != nil {
			internal.Log.WithError(err).WithField("selector", sel).Debug("Next-page lookup failed")
			continue
		}
		if ok {
			return c, true
		}
	}
	return control, false
}

// currentPage reads the page indicator, then the URL, and defaults to 1.
func (e *Engine) currentPage(ctx context.Context) int {
	pages := e.opts.Profile.Pages
	if text, ok, err := e.page.Text(ctx, pages.CurrentPageSelector()); err == nil && ok {
		if n, ok := filter.ParsePageNumber(text); ok {
			return n
		}
	}
	if loc, err := e.page.Location(ctx); err == nil {
		if n, ok := pages.PageFromURL(loc); ok {
			return n
		}
	}
	return 1
}

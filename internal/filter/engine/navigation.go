package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"offer-filter/internal"
	"offer-filter/pkg/models"
)

// start begins a browsing session on the current page.
func (e *Engine) start(ctx context.Context) {
	e.stopDetectors()
	e.active = true
	e.sessionID = uuid.NewString()

	if loc, err := e.page.Location(ctx); err == nil {
		e.lastURL = loc
	} else {
		internal.Log.WithError(err).Warn("Failed to read page location")
	}
	e.pageNum = e.currentPage(ctx)
	e.nav = models.NavState{StartingPage: e.pageNum}

	e.after(e.opts.BootDelay, event{kind: evPass})

	watchCtx, cancel := context.WithCancel(ctx)
	e.unwatch = cancel
	events, err := e.page.Watch(watchCtx, e.opts.Profile.Listings.ListingSelector(), e.opts.Profile.Pages.CurrentPageSelector())
	if err != nil {
		// The URL poll still notices navigation.
		internal.Log.WithError(err).Warn("Failed to watch the page for changes")
	}
	e.pageEvents = events

	e.ticker = time.NewTicker(e.opts.PollInterval)
	e.pollC = e.ticker.C

	if e.opts.Domains != nil && e.opts.RespectRobots && e.lastURL != "" {
		go e.opts.Domains.Prefetch(ctx, e.lastURL)
	}

	internal.Log.WithFields(logrus.Fields{
		"session": e.sessionID,
		"url":     e.lastURL,
		"page":    e.pageNum,
	}).Info("Offer filter is active")
}

// stop ends the session. With clearUI every listing is restored and the panel removed.
func (e *Engine) stop(ctx context.Context, clearUI bool) {
	e.stopDetectors()
	e.active = false
	if clearUI {
		e.resetOffersAndUI(ctx)
	}
	internal.Log.Info("Offer filter is off")
}

func (e *Engine) stopDetectors() {
	if e.unwatch != nil {
		e.unwatch()
		e.unwatch = nil
	}
	e.pageEvents = nil
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
	e.pollC = nil
}

func (e *Engine) pollLocation(ctx context.Context) {
	loc, err := e.page.Location(ctx)
	if err != nil {
		internal.Log.WithError(err).Debug("Location poll failed")
		return
	}
	if loc == e.lastURL {
		return
	}
	e.lastURL = loc
	e.navigated(ctx, "url changed")
}

// navigated is the single handler for every sign that a new page is showing.
// Repeated calls inside the settle window produce one pass.
func (e *Engine) navigated(ctx context.Context, reason string) {
	internal.Log.WithField("reason", reason).Debug("Navigation detected, reapplying filters")
	e.nav.Navigating = false
	e.releaseListings(ctx)
	e.settle(func() { e.post(event{kind: evPass}) })
}

// releaseListings makes every processed listing visible and eligible for the next pass.
// Decorations stay; the page marker keeps them from being added twice.
func (e *Engine) releaseListings(ctx context.Context) {
	for id, rec := range e.records {
		if rec.hidden {
			if err := e.page.SetHidden(ctx, id, false); err != nil {
				internal.Log.WithError(err).WithField("listing", id).Debug("Failed to unhide listing")
			}
		}
		rec.processed = false
		rec.hidden = false
	}
}

// resetListings removes every trace of filtering from the page.
func (e *Engine) resetListings(ctx context.Context) {
	titleSel := e.opts.Profile.Listings.TitleSelector()
	for id, rec := range e.records {
		if rec.hidden {
			if err := e.page.SetHidden(ctx, id, false); err != nil {
				internal.Log.WithError(err).WithField("listing", id).Debug("Failed to unhide listing")
			}
		}
		if rec.decorated {
			if err := e.page.Undecorate(ctx, id, titleSel); err != nil {
				internal.Log.WithError(err).WithField("listing", id).Debug("Failed to undecorate listing")
			}
		}
	}
	e.records = make(map[models.NodeID]*record)
}

func (e *Engine) resetOffersAndUI(ctx context.Context) {
	if err := e.page.RemovePanel(ctx); err != nil {
		internal.Log.WithError(err).Warn("Failed to remove status panel")
	}
	e.resetListings(ctx)
	e.stats = models.FilterStats{}
	e.message = ""
}

// forceReapply forgets every decision and schedules a fresh pass.
func (e *Engine) forceReapply(ctx context.Context, status string) {
	e.resetListings(ctx)
	e.nav.Navigating = false
	e.updatePanel(ctx, status)
	e.after(e.opts.ReapplyDelay, event{kind: evPass})
}

package engine

import (
	"context"
	"time"

	"offer-filter/internal"
	"offer-filter/internal/filter"
	"offer-filter/internal/settings"
	"offer-filter/pkg/models"
)

func criteria(s settings.Settings) filter.Criteria {
	return filter.Criteria{
		MinRating:     s.MinRating,
		MinOpinions:   s.MinOpinions,
		HideSponsored: s.HideSponsored,
	}
}

// applyFilters classifies every listing that has not been processed yet and
// recounts the whole page.
func (e *Engine) applyFilters(ctx context.Context) {
	if !e.settings.Enabled || !e.active || e.nav.Navigating {
		return
	}

	listings, err := e.page.Listings(ctx, e.opts.Profile.Listings.ListingSelector())
	if err != nil {
		internal.Log.WithError(err).Warn("Failed to read listings")
		return
	}
	if len(listings) == 0 {
		e.updatePanel(ctx, "No offers detected")
		return
	}

	crit := criteria(e.settings)
	seen := make(map[models.NodeID]struct{}, len(listings))
	shown, hidden := 0, 0

	for _, l := range listings {
		seen[l.ID] = struct{}{}
		rec, ok := e.records[l.ID]
		if !ok {
			rec = &record{}
			e.records[l.ID] = rec
		}
		if rec.processed {
			if rec.hidden {
				hidden++
			} else {
				shown++
			}
			continue
		}
		rec.processed = true

		if e.evaluate(ctx, l, rec, crit) {
			shown++
			continue
		}
		rec.hidden = true
		if err := e.page.SetHidden(ctx, l.ID, true); err != nil {
			internal.Log.WithError(err).WithField("listing", l.ID).Debug("Failed to hide listing")
		}
		hidden++
	}

	// Drop records of listings that left the page.
	for id := range e.records {
		if _, ok := seen[id]; !ok {
			delete(e.records, id)
		}
	}

	e.stats = models.FilterStats{Filtered: shown, Hidden: hidden, Total: len(listings)}
	e.report(ctx)

	if shown == 0 {
		e.after(e.opts.PaginationDelay, event{kind: evPaginate})
		return
	}
	e.updatePanel(ctx, "")
}

// evaluate decides one listing and, when it is kept, shows and decorates it.
// Any failure counts as a rejection.
func (e *Engine) evaluate(ctx context.Context, l models.Listing, rec *record, crit filter.Criteria) bool {
	log := internal.Log.WithField("listing", l.ID)

	d, err := e.classifier.Classify(l, crit)
	rec.decision = d
	if err != nil {
		log.WithError(err).Debug("Failed to classify listing")
		return false
	}
	if !d.Keep {
		log.WithField("reason", d.Reason).Debug("Listing hidden")
		return false
	}

	if err := e.page.SetHidden(ctx, l.ID, false); err != nil {
		log.WithError(err).Debug("Failed to show listing")
		rec.decision = filter.Decision{Reason: filter.Failed}
		return false
	}
	rec.hidden = false
	if !rec.decorated {
		if err := e.page.Decorate(ctx, l.ID, e.opts.Profile.Listings.TitleSelector(), d.Rating.Badge()); err != nil {
			log.WithError(err).Debug("Failed to decorate listing")
			rec.decision = filter.Decision{Reason: filter.Failed}
			return false
		}
		rec.decorated = true
	}
	return true
}

func (e *Engine) report(ctx context.Context) {
	e.pageNum = e.currentPage(ctx)
	if e.opts.Reports == nil {
		return
	}
	r := models.PassReport{
		SessionID: e.sessionID,
		URL:       e.lastURL,
		Page:      e.pageNum,
		Stats:     e.stats,
		At:        time.Now(),
	}
	select {
	case e.opts.Reports <- r:
	default:
		internal.Log.Debug("Pass report dropped, sink is busy")
	}
}

// Package engine runs the listing filter against one results page.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"

	"offer-filter/internal"
	"offer-filter/internal/config"
	"offer-filter/internal/filter"
	"offer-filter/internal/settings"
	"offer-filter/pkg/models"
)

// Page is the results page the engine works on.
type Page interface {
	Location(ctx context.Context) (string, error)
	// Listings returns a snapshot of every element matching selector, in document order.
	Listings(ctx context.Context, selector string) ([]models.Listing, error)
	// Text returns the text of the first element matching selector.
	Text(ctx context.Context, selector string) (string, bool, error)
	// Find returns the first element matching selector, with its href resolved.
	Find(ctx context.Context, selector string) (models.Control, bool, error)
	SetHidden(ctx context.Context, id models.NodeID, hidden bool) error
	// Decorate highlights the listing's title and appends badge. Decorating twice is a no-op.
	Decorate(ctx context.Context, id models.NodeID, titleSelector, badge string) error
	Undecorate(ctx context.Context, id models.NodeID, titleSelector string) error
	Click(ctx context.Context, id models.NodeID) error
	// ShowPanel creates the status panel if needed and replaces its content.
	ShowPanel(ctx context.Context, markup string) error
	RemovePanel(ctx context.Context) error
	// Watch reports listings being added, the page indicator changing and the
	// panel being dismissed until ctx is done.
	Watch(ctx context.Context, listingSelector, indicatorSelector string) (<-chan models.PageEvent, error)
}

type Options struct {
	Profile       filter.Profile
	DismissAction config.DismissAction

	BootDelay       time.Duration
	RefilterDelay   time.Duration
	SettleDelay     time.Duration
	PaginationDelay time.Duration
	ReapplyDelay    time.Duration
	PollInterval    time.Duration

	// Domains spaces page advances per host; nil disables the check.
	Domains       *filter.DomainManager
	RespectRobots bool
	// URLFilter restricts where automated page advances may go.
	URLFilter filter.URLFilter

	// Reports receives one report per full pass. Reports are dropped when it is full.
	Reports chan<- models.PassReport
}

// OptionsFromConfig fills the timing and politeness options from cfg.
func OptionsFromConfig(cfg *config.Config, profile filter.Profile) Options {
	opts := Options{
		Profile:         profile,
		DismissAction:   cfg.DismissAction,
		BootDelay:       cfg.BootDelay,
		RefilterDelay:   cfg.RefilterDelay,
		SettleDelay:     cfg.SettleDelay,
		PaginationDelay: cfg.PaginationDelay,
		ReapplyDelay:    cfg.ReapplyDelay,
		PollInterval:    cfg.PollInterval,
		RespectRobots:   cfg.RespectRobots,
	}
	if cfg.RateLimit > 0 || cfg.RespectRobots {
		opts.Domains = filter.NewDomainManager(cfg.UserAgent, cfg.RateLimit)
	}
	if f, err := filter.NewInDomainFilter(cfg.StartURL); err == nil {
		opts.URLFilter = f
	}
	return opts
}

// Status is a read-only view of the engine for the control endpoint.
type Status struct {
	SessionID string             `json:"sessionId"`
	Active    bool               `json:"active"`
	Message   string             `json:"status"`
	URL       string             `json:"url"`
	Page      int                `json:"page"`
	Stats     models.FilterStats `json:"stats"`
	Nav       models.NavState    `json:"navigation"`
	Settings  settings.Settings  `json:"settings"`
}

type eventKind int

const (
	evPass eventKind = iota
	evPaginate
	evReapply
)

type event struct {
	kind   eventKind
	status string
}

// record is what the engine knows about one listing on the current page.
type record struct {
	processed bool
	hidden    bool
	decorated bool
	decision  filter.Decision
}

// Engine owns all filter state. Everything except Status and Reapply runs on
// the goroutine that called Run.
type Engine struct {
	page       Page
	store      settings.Store
	opts       Options
	classifier *filter.Classifier

	settings  settings.Settings
	active    bool
	sessionID string
	records   map[models.NodeID]*record
	stats     models.FilterStats
	nav       models.NavState
	lastURL   string
	pageNum   int
	message   string

	events   chan event
	done     chan struct{}
	refilter func(func())
	settle   func(func())

	unwatch    context.CancelFunc
	pageEvents <-chan models.PageEvent
	ticker     *time.Ticker
	pollC      <-chan time.Time

	statusMu sync.RWMutex
	status   Status
}

func New(page Page, store settings.Store, opts Options) *Engine {
	if opts.Profile.Listings == nil {
		opts.Profile = filter.AllegroProfile()
	}
	if opts.DismissAction == "" {
		opts.DismissAction = config.DismissHidePanel
	}
	if opts.URLFilter == nil {
		opts.URLFilter = filter.AlwaysFilter{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}

	return &Engine{
		page:       page,
		store:      store,
		opts:       opts,
		classifier: filter.NewClassifier(opts.Profile),
		settings:   settings.Defaults(),
		records:    make(map[models.NodeID]*record),
		events:     make(chan event, 64),
		done:       make(chan struct{}),
		refilter:   debounce.New(opts.RefilterDelay),
		settle:     debounce.New(opts.SettleDelay),
	}
}

// Run loads the settings, starts or stops filtering accordingly and then
// processes events until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)

	changes, err := e.store.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to settings: %w", err)
	}
	s, err := settings.Load(ctx, e.store)
	if err != nil {
		return err
	}
	e.settings = s

	if e.settings.Enabled {
		e.start(ctx)
	} else {
		e.stop(ctx, true)
	}
	e.publishStatus()

	for {
		select {
		case <-ctx.Done():
			e.stopDetectors()
			internal.Log.Info("Offer filter stopped")
			return nil
		case ev := <-e.events:
			e.handle(ctx, ev)
		case changed := <-changes:
			e.applyChange(ctx, changed)
		case pe := <-e.pageEvents:
			e.handlePageEvent(ctx, pe)
		case <-e.pollC:
			e.pollLocation(ctx)
		}
		e.publishStatus()
	}
}

// Reapply asks the engine to forget every decision and filter the page again.
func (e *Engine) Reapply() {
	e.post(event{kind: evReapply, status: "Updating…"})
}

func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

func (e *Engine) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evPass:
		e.applyFilters(ctx)
	case evPaginate:
		e.paginate(ctx)
	case evReapply:
		if e.active {
			e.forceReapply(ctx, ev.status)
		}
	}
}

// applyChange merges a settings notification into the engine's copy.
func (e *Engine) applyChange(ctx context.Context, changed settings.Values) {
	prev := e.settings
	next := prev.Overlay(changed)
	diff := prev.Diff(next)
	if len(diff) == 0 {
		return
	}
	e.settings = next
	internal.Log.WithField("keys", diff).Debug("Settings changed")

	has := func(keys ...string) bool {
		for _, d := range diff {
			for _, k := range keys {
				if d == k {
					return true
				}
			}
		}
		return false
	}

	if has(settings.KeyEnabled) {
		if next.Enabled {
			e.start(ctx)
			e.forceReapply(ctx, "Enabled — reapplying…")
		} else {
			e.stop(ctx, true)
		}
		return
	}

	if has(settings.KeyShowSummary) && e.active {
		if next.ShowSummary {
			e.updatePanel(ctx, "Showing panel…")
		} else if err := e.page.RemovePanel(ctx); err != nil {
			internal.Log.WithError(err).Warn("Failed to remove status panel")
		}
	}

	if has(settings.KeyMinRating, settings.KeyMinOpinions, settings.KeyAutoPagination,
		settings.KeyMaxPages, settings.KeyHideSponsored) && prev.Enabled {
		e.forceReapply(ctx, "Settings changed — reapplying…")
	}
}

func (e *Engine) handlePageEvent(ctx context.Context, pe models.PageEvent) {
	switch pe.Kind {
	case models.ListingsAdded:
		e.refilter(func() { e.post(event{kind: evPass}) })
	case models.PageIndicatorChanged:
		e.navigated(ctx, "page indicator changed")
	case models.PanelDismissed:
		e.dismiss()
	}
}

func (e *Engine) dismiss() {
	values := settings.Values{settings.KeyShowSummary: false}
	if e.opts.DismissAction == config.DismissDisable {
		values = settings.Values{settings.KeyEnabled: false}
	}
	// The store notifies this loop, so the write must not block it.
	go func() {
		if err := e.store.Set(context.Background(), values); err != nil {
			internal.Log.WithError(err).Warn("Failed to persist panel dismissal")
		}
	}()
}

// after posts ev once d has elapsed.
func (e *Engine) after(d time.Duration, ev event) {
	time.AfterFunc(d, func() { e.post(ev) })
}

func (e *Engine) post(ev event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) publishStatus() {
	st := Status{
		SessionID: e.sessionID,
		Active:    e.active,
		Message:   e.message,
		URL:       e.lastURL,
		Page:      e.pageNum,
		Stats:     e.stats,
		Nav:       e.nav,
		Settings:  e.settings,
	}
	e.statusMu.Lock()
	e.status = st
	e.statusMu.Unlock()
}

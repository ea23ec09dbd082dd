package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/mailru/easyjson"
	"github.com/tidwall/gjson"

	"offer-filter/internal"
	"offer-filter/pkg/models"
)

type ChromeConfig struct {
	// WSURL attaches to a running browser instead of launching one.
	WSURL     string
	Headless  bool
	UserAgent string
	Timeout   time.Duration
}

// ChromePage drives one browser tab over the DevTools protocol.
type ChromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration

	mu       sync.Mutex
	scriptID page.ScriptIdentifier
}

func NewChromePage(parent context.Context, cfg ChromeConfig) (*ChromePage, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.WSURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, cfg.WSURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, opts...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	// Starts the browser (or attaches) and opens the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ChromePage{ctx: tabCtx, cancel: cancel, timeout: timeout}, nil
}

func (p *ChromePage) Close() {
	p.cancel()
}

// Done is closed when the tab or browser goes away.
func (p *ChromePage) Done() <-chan struct{} {
	return p.ctx.Done()
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body"))
}

func (p *ChromePage) Location(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (p *ChromePage) Listings(ctx context.Context, selector string) ([]models.Listing, error) {
	var listings []models.Listing
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)).Do(ctx); err != nil {
			return err
		}
		for _, n := range nodes {
			snapshot, err := dom.GetOuterHTML().WithBackendNodeID(n.BackendNodeID).Do(ctx)
			if err != nil {
				// The card went away between the query and the snapshot.
				internal.Log.WithError(err).WithField("node", n.BackendNodeID).Debug("Skipping detached listing")
				continue
			}
			listings = append(listings, models.Listing{ID: models.NodeID(n.BackendNodeID), HTML: snapshot})
		}
		return nil
	}))
	return listings, err
}

func (p *ChromePage) Text(ctx context.Context, selector string) (string, bool, error) {
	var text *string
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(textScript, quote(selector)), &text)); err != nil {
		return "", false, err
	}
	if text == nil {
		return "", false, nil
	}
	return *text, true, nil
}

func (p *ChromePage) Find(ctx context.Context, selector string) (models.Control, bool, error) {
	var control models.Control
	var found bool
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)).Do(ctx); err != nil {
			return err
		}
		if len(nodes) == 0 {
			return nil
		}
		var loc string
		if err := chromedp.Location(&loc).Do(ctx); err != nil {
			return err
		}
		found = true
		control = models.Control{
			ID:   models.NodeID(nodes[0].BackendNodeID),
			Href: resolveURL(loc, nodes[0].AttributeValue("href")),
		}
		return nil
	}))
	return control, found, err
}

func (p *ChromePage) SetHidden(ctx context.Context, id models.NodeID, hidden bool) error {
	return p.callOn(ctx, id, setHiddenFunc, hidden)
}

func (p *ChromePage) Decorate(ctx context.Context, id models.NodeID, titleSelector, badge string) error {
	return p.callOn(ctx, id, decorateFunc, titleSelector, badge)
}

func (p *ChromePage) Undecorate(ctx context.Context, id models.NodeID, titleSelector string) error {
	return p.callOn(ctx, id, undecorateFunc, titleSelector)
}

func (p *ChromePage) Click(ctx context.Context, id models.NodeID) error {
	return p.callOn(ctx, id, clickFunc)
}

func (p *ChromePage) ShowPanel(ctx context.Context, markup string) error {
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf(showPanelScript, quote(markup), quote(bindingName)), nil))
}

func (p *ChromePage) RemovePanel(ctx context.Context) error {
	return p.run(ctx, chromedp.Evaluate(removePanelScript, nil))
}

// Watch installs the mutation observer in the current document and in every
// document loaded after it. Events stop when ctx is cancelled.
func (p *ChromePage) Watch(ctx context.Context, listingSelector, indicatorSelector string) (<-chan models.PageEvent, error) {
	script := fmt.Sprintf(observerScript, bindingName, quote(listingSelector), quote(indicatorSelector))

	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := runtime.AddBinding(bindingName).Do(ctx); err != nil {
			return err
		}
		id, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.scriptID = id
		p.mu.Unlock()
		return chromedp.Evaluate(script, nil).Do(ctx)
	}))
	if err != nil {
		return nil, fmt.Errorf("install page hooks: %w", err)
	}

	events := make(chan models.PageEvent, 16)
	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != bindingName || ctx.Err() != nil {
			return
		}
		var kind models.PageEventKind
		switch gjson.Get(called.Payload, "kind").String() {
		case "listings":
			kind = models.ListingsAdded
		case "page":
			kind = models.PageIndicatorChanged
		case "dismiss":
			kind = models.PanelDismissed
		default:
			return
		}
		select {
		case events <- models.PageEvent{Kind: kind}:
		default:
			internal.Log.WithField("event", kind).Debug("Page event dropped, receiver busy")
		}
	})

	go func() {
		<-ctx.Done()
		p.unwatch()
	}()
	return events, nil
}

func (p *ChromePage) unwatch() {
	p.mu.Lock()
	id := p.scriptID
	p.scriptID = ""
	p.mu.Unlock()

	err := p.run(context.Background(), chromedp.ActionFunc(func(ctx context.Context) error {
		if id != "" {
			if err := page.RemoveScriptToEvaluateOnNewDocument(id).Do(ctx); err != nil {
				return err
			}
		}
		return chromedp.Evaluate(disconnectScript, nil).Do(ctx)
	}))
	if err != nil && p.ctx.Err() == nil {
		internal.Log.WithError(err).Warn("Failed to remove page hooks")
	}
}

// callOn runs fn with the element as `this`.
func (p *ChromePage) callOn(ctx context.Context, id models.NodeID, fn string, args ...any) error {
	callArgs := make([]*runtime.CallArgument, 0, len(args))
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return err
		}
		callArgs = append(callArgs, &runtime.CallArgument{Value: easyjson.RawMessage(raw)})
	}

	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(cdp.BackendNodeID(id)).Do(ctx)
		if err != nil {
			return fmt.Errorf("node %d: %w: %v", id, ErrStaleNode, err)
		}
		defer runtime.ReleaseObject(obj.ObjectID).Do(ctx)

		_, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithArguments(callArgs).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return nil
	}))
}

// run executes actions on the tab, bounded by the page timeout and by ctx.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

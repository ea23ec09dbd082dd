package filter

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"

	"offer-filter/internal"
)

// DomainManager keeps automated page advances polite: it honours robots.txt for
// the pages it is about to open and spaces advances on one host by a minimum interval.
type DomainManager struct {
	mu          sync.Mutex
	userAgent   string
	interval    time.Duration
	client      *retryablehttp.Client
	limiters    map[string]*rate.Limiter
	robotsCache map[string]*robotstxt.Group
}

func NewDomainManager(userAgent string, interval time.Duration) *DomainManager {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = nil

	return &DomainManager{
		userAgent:   userAgent,
		interval:    interval,
		client:      client,
		limiters:    make(map[string]*rate.Limiter),
		robotsCache: make(map[string]*robotstxt.Group),
	}
}

// Delay reserves an advance to targetURL. It returns zero when the advance may
// happen now, otherwise how long the caller should wait before trying again.
func (d *DomainManager) Delay(targetURL string) time.Duration {
	u, err := url.Parse(targetURL)
	if err != nil {
		return 0
	}

	d.mu.Lock()
	limiter, exists := d.limiters[u.Host]
	if !exists {
		// One advance immediately, then one per interval.
		limiter = rate.NewLimiter(rate.Every(d.interval), 1)
		d.limiters[u.Host] = limiter
	}
	d.mu.Unlock()

	r := limiter.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return delay
	}
	return 0
}

// Prefetch loads robots.txt for the host of link so later IsAllowed calls do not hit the network.
func (d *DomainManager) Prefetch(ctx context.Context, link string) {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return
	}
	d.mu.Lock()
	_, cached := d.robotsCache[u.Host]
	d.mu.Unlock()
	if cached {
		return
	}
	group := d.fetchGroup(ctx, u)

	d.mu.Lock()
	d.robotsCache[u.Host] = group
	d.mu.Unlock()
}

func (d *DomainManager) IsAllowed(ctx context.Context, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}

	d.Prefetch(ctx, link)

	d.mu.Lock()
	group := d.robotsCache[u.Host]
	d.mu.Unlock()

	if group == nil {
		return true // No robots.txt or parse error = Allowed
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

func (d *DomainManager) fetchGroup(ctx context.Context, u *url.URL) *robotstxt.Group {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.Scheme+"://"+u.Host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		internal.Log.WithError(err).WithField("host", u.Host).Debug("robots.txt unavailable, assuming allowed")
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(d.userAgent)
}

package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Fetcher downloads result pages for offline evaluation.
type Fetcher struct {
	UserAgent string
	client    *retryablehttp.Client
}

func NewFetcher(userAgent string, timeout time.Duration) *Fetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	return &Fetcher{UserAgent: userAgent, client: client}
}

func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (io.ReadCloser, int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept-Language", "pl-PL,pl;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}

	return resp.Body, resp.StatusCode, nil
}

// Load fetches targetURL and parses it into a StaticPage.
func (f *Fetcher) Load(ctx context.Context, targetURL string) (*StaticPage, error) {
	body, status, err := f.Fetch(ctx, targetURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch %s: status %d", targetURL, status)
	}
	return NewStaticPage(body, targetURL)
}

// Utility to resolve relative URLs (e.g. "/listing?p=2" -> "https://allegro.pl/listing?p=2")
func resolveURL(base, href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(u).String()
}

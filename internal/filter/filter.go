package filter

import (
	"fmt"
	"net/url"
	"strings"
)

// URLFilter decides whether the engine may follow a link on its own.
type URLFilter interface {
	Filter(link string) bool
}

type AlwaysFilter struct{}

func (filter AlwaysFilter) Filter(link string) bool {
	return true
}

// InDomainFilter keeps automated navigation on the site the session started on.
type InDomainFilter struct {
	Domain string
}

func NewInDomainFilter(startURL string) (*InDomainFilter, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}

	// Extract hostname and strip "www." to allow subdomains
	host := u.Hostname()
	domain := strings.TrimPrefix(host, "www.")

	if domain == "" {
		return nil, fmt.Errorf("could not extract domain from %s", startURL)
	}

	return &InDomainFilter{Domain: domain}, nil
}

func (filter InDomainFilter) Filter(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain := strings.ToLower(filter.Domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

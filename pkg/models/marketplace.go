package models

import "strings"

type Marketplace int

const (
	None Marketplace = iota
	Allegro
)

func (m Marketplace) String() string {
	switch m {
	case Allegro:
		return "Allegro"
	default:
		return "None"
	}
}

// MarketplaceFromHost maps a hostname such as "allegro.pl" or "www.allegro.pl" to its marketplace.
func MarketplaceFromHost(host string) Marketplace {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	switch {
	case host == "allegro.pl", strings.HasSuffix(host, ".allegro.pl"):
		return Allegro
	default:
		return None
	}
}

package models

import "time"

// NodeID identifies an element for the lifetime of the document it belongs to.
// Live pages use the CDP backend node id, static pages an arena index.
type NodeID int64

// Listing is a snapshot of one result card.
type Listing struct {
	ID   NodeID
	HTML string
}

// Control is a clickable element such as the next-page link.
type Control struct {
	ID   NodeID
	Href string
}

type FilterStats struct {
	Filtered int `json:"filtered"`
	Hidden   int `json:"hidden"`
	Total    int `json:"total"`
}

type NavState struct {
	Navigating   bool `json:"navigating"`
	PagesChecked int  `json:"pagesChecked"`
	StartingPage int  `json:"startingPage"`
}

// PassReport summarises one full filtering pass.
type PassReport struct {
	SessionID string
	URL       string
	Page      int
	Stats     FilterStats
	At        time.Time
}

type PageEventKind int

const (
	ListingsAdded PageEventKind = iota
	PageIndicatorChanged
	PanelDismissed
)

func (k PageEventKind) String() string {
	switch k {
	case ListingsAdded:
		return "listings-added"
	case PageIndicatorChanged:
		return "page-indicator-changed"
	case PanelDismissed:
		return "panel-dismissed"
	default:
		return "unknown"
	}
}

// PageEvent is a notification raised by hooks installed in the page.
type PageEvent struct {
	Kind PageEventKind
}

// PanelCloseAttr marks the status panel's dismiss control.
const PanelCloseAttr = "data-offer-filter-close"

package domain

import "time"

// TabKind classifies an open browser tab.
type TabKind string

const (
	TabVideo   TabKind = "video"
	TabResults TabKind = "results"
	TabUnknown TabKind = "unknown"
)

// TabRecord tracks a single open tab. Created on tab creation or navigation,
// destroyed on tab close.
type TabRecord struct {
	ID   int     `json:"id"`
	Kind TabKind `json:"kind"`
	URL  string  `json:"url"`
}

// TabInfo is a live tab as reported by the platform tab capability.
type TabInfo struct {
	ID       int    `json:"id"`
	WindowID int    `json:"windowID"`
	URL      string `json:"url"`
	Active   bool   `json:"active"`
}

// AddressEntry is the best-known live tab for a normalized video address.
// Refreshed on every successful validation, purged lazily on lookup.
type AddressEntry struct {
	TabID    int       `json:"tabID"`
	URL      string    `json:"url"`
	LastSeen time.Time `json:"lastSeen"`
}

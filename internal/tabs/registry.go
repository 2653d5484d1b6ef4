// Package tabs tracks open video/results tabs and maps generation sessions to
// the tabs that show them. Video identity is fuzzy: URLs are normalized so
// addresses differing only by playback position are the same video.
package tabs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joss/chapterd/internal/domain"
	"github.com/joss/chapterd/internal/logging"
)

// ResolveMethod says how a video tab was located.
type ResolveMethod string

const (
	// ResolveDirect means the cached tab was alive and still on the video.
	ResolveDirect ResolveMethod = "direct"
	// ResolveDiscovered means the cache was stale but a scan of open tabs
	// found a match and refreshed it.
	ResolveDiscovered ResolveMethod = "discovered"
	// ResolveCreateNew means no open tab shows the video; the caller should
	// open the carried URL.
	ResolveCreateNew ResolveMethod = "create_new"
)

// Resolution is the outcome of a video-tab lookup.
type Resolution struct {
	Method ResolveMethod `json:"method"`
	TabID  int           `json:"tabId,omitempty"`
	URL    string        `json:"url"`
}

// ResultsTabStatus reports whether a results tab is open, and for which
// session.
type ResultsTabStatus struct {
	Open      bool   `json:"open"`
	TabID     int    `json:"tabId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Registry owns the tab records and both directions of the video↔results
// mapping. It reconciles against the live tab list on demand; stale cache
// entries are purged lazily on the next lookup, never eagerly.
type Registry struct {
	mu         sync.Mutex
	platform   Platform
	classifier *Classifier

	tabs         map[int]*domain.TabRecord
	sessionAddr  map[string]string               // session id -> normalized address
	addrTabs     map[string]*domain.AddressEntry // normalized address -> believed-live tab
	resultsTabs  map[string]int                  // session id -> results tab id
	resultsOwner map[int]string                  // results tab id -> session id

	// OnSessionGone is called (outside the lock) when a results tab closes
	// and its session should be removed upstream.
	OnSessionGone func(sessionID string)

	// OnTabClosed is called (outside the lock) for every unregistered tab so
	// in-flight network calls owned by it can be cancelled.
	OnTabClosed func(tabID int)

	now func() time.Time
	log *logging.Logger
}

// NewRegistry creates a registry over the given platform capability.
func NewRegistry(platform Platform, classifier *Classifier) *Registry {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	return &Registry{
		platform:     platform,
		classifier:   classifier,
		tabs:         make(map[int]*domain.TabRecord),
		sessionAddr:  make(map[string]string),
		addrTabs:     make(map[string]*domain.AddressEntry),
		resultsTabs:  make(map[string]int),
		resultsOwner: make(map[int]string),
		now:          time.Now,
		log:          logging.New("tabs"),
	}
}

// RegisterVideoTab records that the session's video is showing in tabID at
// rawURL. Stores both the session→address and address→tab mappings.
func (r *Registry) RegisterVideoTab(sessionID string, tabID int, rawURL string) error {
	addr, err := Normalize(rawURL)
	if err != nil {
		return fmt.Errorf("register video tab: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessionAddr[sessionID] = addr
	r.addrTabs[addr] = &domain.AddressEntry{TabID: tabID, URL: rawURL, LastSeen: r.now()}
	r.tabs[tabID] = &domain.TabRecord{ID: tabID, Kind: domain.TabVideo, URL: rawURL}
	return nil
}

// RegisterResultsTab records the results tab for a session. One results tab
// per session; any number of sessions.
func (r *Registry) RegisterResultsTab(sessionID string, tabID int, rawURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A session regaining a results tab drops the old owner mapping.
	if old, ok := r.resultsTabs[sessionID]; ok {
		delete(r.resultsOwner, old)
	}
	r.resultsTabs[sessionID] = tabID
	r.resultsOwner[tabID] = sessionID
	r.tabs[tabID] = &domain.TabRecord{ID: tabID, Kind: domain.TabResults, URL: rawURL}
}

// Observe updates the record for a tab that was created or navigated,
// classifying its kind from the URL. Results tabs keep their kind: they are
// registered explicitly and a same-tab navigation must not demote them.
func (r *Registry) Observe(tabID int, rawURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.tabs[tabID]; ok && rec.Kind == domain.TabResults {
		rec.URL = rawURL
		return
	}
	r.tabs[tabID] = &domain.TabRecord{ID: tabID, Kind: r.classifier.Kind(rawURL), URL: rawURL}
}

// Record returns a copy of the tab record, if tracked.
func (r *Registry) Record(tabID int) (domain.TabRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tabs[tabID]
	if !ok {
		return domain.TabRecord{}, false
	}
	return *rec, true
}

// VideoTabFor resolves the session's video to a live tab. It first validates
// the cached tab (direct), then scans the open tab list for a normalized
// match (discovered), and finally hands back a create-new directive with the
// target address.
func (r *Registry) VideoTabFor(ctx context.Context, sessionID string) (Resolution, error) {
	r.mu.Lock()
	addr, ok := r.sessionAddr[sessionID]
	if !ok {
		r.mu.Unlock()
		return Resolution{}, fmt.Errorf("video tab for session %s: no registered video", sessionID)
	}
	var cached domain.AddressEntry
	hasCached := false
	if e, ok := r.addrTabs[addr]; ok {
		cached = *e
		hasCached = true
	}
	r.mu.Unlock()

	if hasCached {
		if tab, err := r.platform.Get(ctx, cached.TabID); err == nil {
			if got, err := Normalize(tab.URL); err == nil && got == addr {
				r.refresh(addr, tab.ID, tab.URL)
				return Resolution{Method: ResolveDirect, TabID: tab.ID, URL: tab.URL}, nil
			}
		}
	}

	// Cache was stale or empty: scan all open tabs. First match in
	// enumeration order wins.
	open, err := r.platform.Query(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("query tabs: %w", err)
	}
	for _, tab := range open {
		got, err := Normalize(tab.URL)
		if err != nil || got != addr {
			continue
		}
		r.refresh(addr, tab.ID, tab.URL)
		r.log.Debug("video_tab_discovered", map[string]interface{}{
			"session": sessionID, "tab": tab.ID,
		})
		return Resolution{Method: ResolveDiscovered, TabID: tab.ID, URL: tab.URL}, nil
	}

	// Nothing live shows this video. Purge the stale entry now (lazy, on
	// lookup) and direct the caller to open the last-known URL.
	target := addr
	r.mu.Lock()
	if e, ok := r.addrTabs[addr]; ok {
		if e.URL != "" {
			target = e.URL
		}
		delete(r.addrTabs, addr)
	}
	r.mu.Unlock()

	return Resolution{Method: ResolveCreateNew, URL: target}, nil
}

func (r *Registry) refresh(addr string, tabID int, rawURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrTabs[addr] = &domain.AddressEntry{TabID: tabID, URL: rawURL, LastSeen: r.now()}
	r.tabs[tabID] = &domain.TabRecord{ID: tabID, Kind: domain.TabVideo, URL: rawURL}
}

// Unregister cascades a tab close: drops the tab record, clears the address
// cache entries pointing at it, clears any results-tab registration, and
// signals session removal and call cancellation upstream.
func (r *Registry) Unregister(tabID int) {
	r.mu.Lock()

	delete(r.tabs, tabID)

	for addr, entry := range r.addrTabs {
		if entry.TabID == tabID {
			delete(r.addrTabs, addr)
		}
	}

	var goneSession string
	if sessionID, ok := r.resultsOwner[tabID]; ok {
		delete(r.resultsOwner, tabID)
		delete(r.resultsTabs, sessionID)
		delete(r.sessionAddr, sessionID)
		goneSession = sessionID
	}

	onGone := r.OnSessionGone
	onClosed := r.OnTabClosed
	r.mu.Unlock()

	if onClosed != nil {
		onClosed(tabID)
	}
	if goneSession != "" {
		r.log.Info("results_tab_closed", map[string]interface{}{
			"session": goneSession, "tab": tabID,
		})
		if onGone != nil {
			onGone(goneSession)
		}
	}
}

// Focus activates the tab and brings its window to the front.
func (r *Registry) Focus(ctx context.Context, tabID int) error {
	if err := r.platform.Activate(ctx, tabID); err != nil {
		return fmt.Errorf("activate tab %d: %w", tabID, err)
	}
	if err := r.platform.FocusWindow(ctx, tabID); err != nil {
		return fmt.Errorf("focus window of tab %d: %w", tabID, err)
	}
	return nil
}

// OpenVideoTab opens a new foreground tab on the video URL and registers it
// for the session.
func (r *Registry) OpenVideoTab(ctx context.Context, sessionID, url string) (domain.TabInfo, error) {
	info, err := r.platform.Create(ctx, url, true)
	if err != nil {
		return domain.TabInfo{}, err
	}
	if err := r.RegisterVideoTab(sessionID, info.ID, url); err != nil {
		return domain.TabInfo{}, err
	}
	return info, nil
}

// OpenResultsTab opens a new foreground tab on the results page and registers
// it as the session's results tab.
func (r *Registry) OpenResultsTab(ctx context.Context, sessionID, url string) (domain.TabInfo, error) {
	info, err := r.platform.Create(ctx, url, true)
	if err != nil {
		return domain.TabInfo{}, err
	}
	r.RegisterResultsTab(sessionID, info.ID, url)
	return info, nil
}

// ResultsTabFor validates and returns the open results tab for a session.
func (r *Registry) ResultsTabFor(ctx context.Context, sessionID string) (int, bool) {
	r.mu.Lock()
	tabID, ok := r.resultsTabs[sessionID]
	r.mu.Unlock()
	if !ok {
		return 0, false
	}
	if _, err := r.platform.Get(ctx, tabID); err != nil {
		return 0, false
	}
	return tabID, true
}

// Status answers "is a results tab open for the video in currentVideoTabID?".
// With no current tab (id 0), or when no session matches its address, any
// still-open results tab is reported as a fallback.
func (r *Registry) Status(ctx context.Context, currentVideoTabID int) ResultsTabStatus {
	var currentAddr string
	if currentVideoTabID != 0 {
		if tab, err := r.platform.Get(ctx, currentVideoTabID); err == nil {
			if addr, err := Normalize(tab.URL); err == nil {
				currentAddr = addr
			}
		}
	}

	r.mu.Lock()
	type candidate struct {
		sessionID string
		tabID     int
	}
	var matched, fallback []candidate
	for sessionID, tabID := range r.resultsTabs {
		c := candidate{sessionID: sessionID, tabID: tabID}
		if currentAddr != "" && r.sessionAddr[sessionID] == currentAddr {
			matched = append(matched, c)
		} else {
			fallback = append(fallback, c)
		}
	}
	r.mu.Unlock()

	for _, set := range [][]candidate{matched, fallback} {
		for _, c := range set {
			if _, err := r.platform.Get(ctx, c.tabID); err == nil {
				return ResultsTabStatus{Open: true, TabID: c.tabID, SessionID: c.sessionID}
			}
		}
	}
	return ResultsTabStatus{}
}

// Len returns the number of tracked tab records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

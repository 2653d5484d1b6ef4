package tabs

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/joss/chapterd/internal/domain"
)

// RodPlatform drives real browser tabs over the Chrome DevTools Protocol.
// CDP identifies pages by target ID; the platform assigns small integer tab
// ids as pages are seen, which is what the registry and the RPC surface use.
type RodPlatform struct {
	mu      sync.Mutex
	browser *rod.Browser
	pages   map[int]*rod.Page
	ids     map[proto.TargetTargetID]int
	nextID  int
}

// NewRodPlatform connects to an already-running browser.
func NewRodPlatform(browser *rod.Browser) *RodPlatform {
	return &RodPlatform{
		browser: browser,
		pages:   make(map[int]*rod.Page),
		ids:     make(map[proto.TargetTargetID]int),
		nextID:  1,
	}
}

// LaunchRodPlatform starts a browser and wraps it.
func LaunchRodPlatform(headless bool) (*RodPlatform, error) {
	path, _ := launcher.LookPath()
	controlURL, err := launcher.New().Bin(path).Headless(headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	return NewRodPlatform(browser), nil
}

// Browser exposes the underlying connection for other CDP consumers, such
// as the transcript scraper.
func (p *RodPlatform) Browser() *rod.Browser {
	return p.browser
}

func (p *RodPlatform) idFor(page *rod.Page) int {
	if id, ok := p.ids[page.TargetID]; ok {
		p.pages[id] = page
		return id
	}
	id := p.nextID
	p.nextID++
	p.ids[page.TargetID] = id
	p.pages[id] = page
	return id
}

func (p *RodPlatform) info(ctx context.Context, id int, page *rod.Page) (domain.TabInfo, error) {
	info, err := page.Context(ctx).Info()
	if err != nil {
		return domain.TabInfo{}, ErrNoTab
	}
	return domain.TabInfo{ID: id, URL: info.URL}, nil
}

// Get returns the live tab, or ErrNoTab when the page has been closed.
func (p *RodPlatform) Get(ctx context.Context, id int) (domain.TabInfo, error) {
	p.mu.Lock()
	page, ok := p.pages[id]
	p.mu.Unlock()
	if !ok {
		return domain.TabInfo{}, ErrNoTab
	}

	tab, err := p.info(ctx, id, page)
	if err != nil {
		p.mu.Lock()
		delete(p.pages, id)
		delete(p.ids, page.TargetID)
		p.mu.Unlock()
		return domain.TabInfo{}, ErrNoTab
	}
	return tab, nil
}

// Query enumerates all open pages, assigning ids to any not yet seen.
// CDP reports pages most-recently-created first; that order is the
// first-match-wins tie-break order.
func (p *RodPlatform) Query(ctx context.Context) ([]domain.TabInfo, error) {
	pages, err := p.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("enumerate pages: %w", err)
	}

	var out []domain.TabInfo
	for _, page := range pages {
		p.mu.Lock()
		id := p.idFor(page)
		p.mu.Unlock()

		tab, err := p.info(ctx, id, page)
		if err != nil {
			continue
		}
		out = append(out, tab)
	}
	return out, nil
}

// Create opens a new tab on the given URL.
func (p *RodPlatform) Create(ctx context.Context, url string, active bool) (domain.TabInfo, error) {
	page, err := p.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return domain.TabInfo{}, fmt.Errorf("create tab: %w", err)
	}

	p.mu.Lock()
	id := p.idFor(page)
	p.mu.Unlock()

	if active {
		if _, err := page.Context(ctx).Activate(); err != nil {
			return domain.TabInfo{}, fmt.Errorf("activate tab: %w", err)
		}
	}
	return domain.TabInfo{ID: id, URL: url}, nil
}

// Activate selects the tab within its window.
func (p *RodPlatform) Activate(ctx context.Context, id int) error {
	p.mu.Lock()
	page, ok := p.pages[id]
	p.mu.Unlock()
	if !ok {
		return ErrNoTab
	}
	if _, err := page.Context(ctx).Activate(); err != nil {
		return fmt.Errorf("activate tab %d: %w", id, err)
	}
	return nil
}

// FocusWindow brings the tab's window to the front. CDP activation raises the
// window as a side effect, so this is the same call.
func (p *RodPlatform) FocusWindow(ctx context.Context, id int) error {
	return p.Activate(ctx, id)
}

// Close shuts the browser down, closing every page.
func (p *RodPlatform) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, page := range p.pages {
		page.Close()
	}
	p.pages = make(map[int]*rod.Page)
	p.ids = make(map[proto.TargetTargetID]int)
	if p.browser != nil {
		p.browser.Close()
	}
}

var _ Platform = (*RodPlatform)(nil)

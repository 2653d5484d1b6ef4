package tabs

import (
	"context"
	"errors"

	"github.com/joss/chapterd/internal/domain"
)

// ErrNoTab indicates the requested tab is not open.
var ErrNoTab = errors.New("tab not open")

// Platform abstracts the browser tab surface: get/enumerate/create tabs and
// bring them to the front. Injected into the registry so tests can run
// against a fake and production against a CDP-driven browser.
type Platform interface {
	// Get returns the live tab with the given ID, or ErrNoTab.
	Get(ctx context.Context, id int) (domain.TabInfo, error)

	// Query enumerates all open tabs. Enumeration order is the tie-break
	// order for duplicate-address resolution: first match wins.
	Query(ctx context.Context) ([]domain.TabInfo, error)

	// Create opens a new tab on the given URL.
	Create(ctx context.Context, url string, active bool) (domain.TabInfo, error)

	// Activate selects the tab within its window.
	Activate(ctx context.Context, id int) error

	// FocusWindow brings the tab's window to the front.
	FocusWindow(ctx context.Context, id int) error
}

// Package retry wraps outbound network calls with bounded backoff on
// server-class failures and per-tab cancellation. Every in-flight call owns
// an abort handle; a tab id indexes the calls it owns so closing the tab
// cancels them all, even mid-delay.
package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joss/chapterd/internal/logging"
)

const (
	// DefaultMaxRetries bounds retries; total attempts ≤ DefaultMaxRetries+1.
	DefaultMaxRetries = 3

	// backoffStep is the base delay: attempt k waits k×backoffStep.
	backoffStep = 5 * time.Second
)

// ErrCancelled is the distinct, non-retryable outcome of an aborted call. It
// unwinds immediately, even while a backoff delay is pending.
var ErrCancelled = errors.New("call cancelled")

// StatusError reports a non-2xx response that was not retried, or a
// server-class response that exhausted the retry budget.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is server-class (500–599).
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// HTTPClient is the outbound transport (enables testing).
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Options describes one outbound call. The body is held as bytes so every
// attempt can rebuild the request.
type Options struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewCallID returns a fresh call identifier.
func NewCallID() string {
	return ulid.Make().String()
}

// Controller tracks abort handles per call and a tab→calls index.
type Controller struct {
	mu       sync.Mutex
	client   HTTPClient
	calls    map[string]context.CancelFunc
	tabCalls map[int]map[string]struct{}

	// sleep waits for the backoff delay, returning early with the context
	// error on cancellation. Injectable so tests assert the exact schedule.
	sleep func(ctx context.Context, d time.Duration) error

	log *logging.Logger
}

// New creates a controller over the given transport; nil means a default
// http.Client with no timeout (the retry budget is the only bound).
func New(client HTTPClient) *Controller {
	if client == nil {
		client = &http.Client{}
	}
	return &Controller{
		client:   client,
		calls:    make(map[string]context.CancelFunc),
		tabCalls: make(map[int]map[string]struct{}),
		sleep:    sleepCtx,
		log:      logging.New("retry"),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// register installs the abort handle under both indices.
func (c *Controller) register(callID string, tabID int, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[callID] = cancel
	set, ok := c.tabCalls[tabID]
	if !ok {
		set = make(map[string]struct{})
		c.tabCalls[tabID] = set
	}
	set[callID] = struct{}{}
}

// unregister removes the call from both indices, pruning an emptied tab set.
// Runs on every exit path: success, exhaustion, cancellation.
func (c *Controller) unregister(callID string, tabID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.calls, callID)
	if set, ok := c.tabCalls[tabID]; ok {
		delete(set, callID)
		if len(set) == 0 {
			delete(c.tabCalls, tabID)
		}
	}
}

// Fetch performs the call with up to maxRetries retries. A response is
// retried only when its status falls in 500–599; network-level failures are
// also retried; anything else returns immediately. The delay before attempt
// k (1-indexed) is k×5s, no jitter. The caller owns the returned response
// body.
func (c *Controller) Fetch(ctx context.Context, opts Options, callID string, tabID int, maxRetries int) (*http.Response, error) {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	callCtx, cancel := context.WithCancel(ctx)
	c.register(callID, tabID, cancel)
	defer func() {
		c.unregister(callID, tabID)
		cancel()
	}()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * backoffStep
			c.log.Debug("backoff", map[string]interface{}{
				"call": callID, "attempt": attempt, "delay_ms": delay.Milliseconds(),
			})
			if err := c.sleep(callCtx, delay); err != nil {
				return nil, fmt.Errorf("call %s: %w", callID, ErrCancelled)
			}
		}

		resp, err := c.attempt(callCtx, opts)
		if err != nil {
			if callCtx.Err() != nil {
				return nil, fmt.Errorf("call %s: %w", callID, ErrCancelled)
			}
			// Network-level failure: retryable.
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 && resp.StatusCode < 600 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
			continue
		}

		// 2xx/4xx: the caller decides, no retry.
		return resp, nil
	}

	return nil, fmt.Errorf("call %s: retries exhausted: %w", callID, lastErr)
}

func (c *Controller) attempt(ctx context.Context, opts Options) (*http.Response, error) {
	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.client.Do(req)
}

// CancelCall aborts a single call.
func (c *Controller) CancelCall(callID string) {
	c.mu.Lock()
	cancel, ok := c.calls[callID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelTab aborts every call registered under the tab.
func (c *Controller) CancelTab(tabID int) {
	c.mu.Lock()
	var cancels []context.CancelFunc
	for callID := range c.tabCalls[tabID] {
		if cancel, ok := c.calls[callID]; ok {
			cancels = append(cancels, cancel)
		}
	}
	c.mu.Unlock()

	if len(cancels) > 0 {
		c.log.Info("cancel_tab", map[string]interface{}{"tab": tabID, "calls": len(cancels)})
	}
	for _, cancel := range cancels {
		cancel()
	}
}

// CancelAll aborts everything. Used when the last window closes.
func (c *Controller) CancelAll() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.calls))
	for _, cancel := range c.calls {
		cancels = append(cancels, cancel)
	}
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// ActiveCalls returns the number of tracked calls.
func (c *Controller) ActiveCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// TabCount returns the number of tabs with in-flight calls.
func (c *Controller) TabCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tabCalls)
}

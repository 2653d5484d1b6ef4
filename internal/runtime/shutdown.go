// Package runtime provides graceful shutdown for the chapterd daemon. The
// HTTP surface, the browser connection, and in-flight generation calls each
// register a teardown hook; a signal or a fatal serve error drains them all.
package runtime

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joss/chapterd/internal/logging"
)

// DefaultShutdownTimeout bounds how long teardown hooks may take in total.
const DefaultShutdownTimeout = 10 * time.Second

// ShutdownFunc is one teardown hook. The context carries the shutdown
// deadline.
type ShutdownFunc func(ctx context.Context) error

type namedHandler struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager coordinates daemon teardown: it owns the run context,
// listens for signals, and drains registered hooks concurrently under a
// deadline.
type ShutdownManager struct {
	mu       sync.Mutex
	handlers []namedHandler

	timeout time.Duration
	runCtx  context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	log     *logging.Logger
}

var (
	globalManager *ShutdownManager
	managerOnce   sync.Once
)

// Global returns the process-wide manager.
func Global() *ShutdownManager {
	managerOnce.Do(func() {
		globalManager = NewShutdownManager(DefaultShutdownTimeout)
	})
	return globalManager
}

// NewShutdownManager creates a manager with the given teardown deadline.
func NewShutdownManager(timeout time.Duration) *ShutdownManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownManager{
		timeout: timeout,
		runCtx:  ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		log:     logging.New("runtime"),
	}
}

// Register adds a teardown hook.
func (m *ShutdownManager) Register(name string, fn ShutdownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, namedHandler{name: name, fn: fn})
}

// RegisterSimple adds a hook with no error or context.
func (m *ShutdownManager) RegisterSimple(name string, fn func()) {
	m.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Context is the daemon's run context; cancelled the moment shutdown begins.
func (m *ShutdownManager) Context() context.Context {
	return m.runCtx
}

// Done closes once every hook has finished or the deadline passed.
func (m *ShutdownManager) Done() <-chan struct{} {
	return m.done
}

// ListenForSignals triggers shutdown on SIGTERM or SIGINT. Non-blocking;
// call once at startup.
func (m *ShutdownManager) ListenForSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigChan
		m.log.Info("signal_received", map[string]interface{}{"signal": sig.String()})
		m.Shutdown()
	}()
}

// Shutdown drains the hooks. Safe to call from multiple paths; only the
// first call does the work.
func (m *ShutdownManager) Shutdown() {
	m.once.Do(m.drain)
}

// WaitForShutdown blocks until teardown finishes.
func (m *ShutdownManager) WaitForShutdown() {
	<-m.done
}

func (m *ShutdownManager) drain() {
	defer close(m.done)

	m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	handlers := make([]namedHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	m.log.Info("shutdown_started", map[string]interface{}{"handlers": len(handlers)})

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(handler namedHandler) {
			defer wg.Done()

			start := time.Now()
			if err := handler.fn(ctx); err != nil {
				m.log.Warn("shutdown_handler_failed", map[string]interface{}{
					"handler":     handler.name,
					"duration_ms": time.Since(start).Milliseconds(),
				}, err)
				return
			}
			m.log.Debug("shutdown_handler_done", map[string]interface{}{
				"handler":     handler.name,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		}(h)
	}

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		m.log.Info("shutdown_complete", nil)
	case <-ctx.Done():
		m.log.Warn("shutdown_timeout", map[string]interface{}{
			"timeout_ms": m.timeout.Milliseconds(),
		}, nil)
	}
}

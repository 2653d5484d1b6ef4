// Package poller drives status polling for a generation session: a fixed
// interval, escalating wait messages, and an independent watchdog that flags
// a timeout without halting the underlying job.
package poller

import (
	"context"
	"time"

	"github.com/joss/chapterd/internal/domain"
	"github.com/joss/chapterd/internal/logging"
)

// Default timing contract.
const (
	DefaultInterval     = 2 * time.Second
	DefaultStillWorking = 60 * time.Second
	DefaultTakingLong   = 300 * time.Second
	DefaultWatchdog     = 5 * time.Minute
)

// Wait messages, escalating with elapsed time.
const (
	MsgWorking      = "Generating chapters..."
	MsgStillWorking = "Still working on it..."
	MsgTakingLong   = "This is taking longer than expected..."
	MsgTimedOut     = "Generation timed out. It may still complete in the background."
)

// StatusFunc answers the current status of a session.
type StatusFunc func(id string) (domain.Status, error)

// Update is one observation delivered to the consumer.
type Update struct {
	SessionID string
	Status    domain.Status
	Message   string
	Elapsed   time.Duration
	TimedOut  bool
	Err       error
}

// Poller polls a session until it reaches a terminal status or the context
// is cancelled. The timing fields default to the production contract and are
// overridable for tests.
type Poller struct {
	Interval     time.Duration
	StillWorking time.Duration
	TakingLong   time.Duration
	Watchdog     time.Duration

	status StatusFunc
	now    func() time.Time
	log    *logging.Logger
}

// New creates a poller over the given status source.
func New(status StatusFunc) *Poller {
	return &Poller{
		Interval:     DefaultInterval,
		StillWorking: DefaultStillWorking,
		TakingLong:   DefaultTakingLong,
		Watchdog:     DefaultWatchdog,
		status:       status,
		now:          time.Now,
		log:          logging.New("poller"),
	}
}

// message picks the escalation tier for the elapsed time.
func (p *Poller) message(elapsed time.Duration, timedOut bool) string {
	switch {
	case timedOut:
		return MsgTimedOut
	case elapsed >= p.TakingLong:
		return MsgTakingLong
	case elapsed >= p.StillWorking:
		return MsgStillWorking
	default:
		return MsgWorking
	}
}

// Watch polls the session and streams updates. The channel closes after the
// terminal update, after a status error, or when the context is cancelled;
// every timer is stopped on the way out. The watchdog firing produces a
// flagged update but polling continues: the job itself is never halted.
func (p *Poller) Watch(ctx context.Context, sessionID string) <-chan Update {
	updates := make(chan Update, 1)

	go func() {
		defer close(updates)

		start := p.now()
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		watchdog := time.NewTimer(p.Watchdog)
		defer watchdog.Stop()

		timedOut := false
		send := func(u Update) bool {
			select {
			case updates <- u:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case <-watchdog.C:
				timedOut = true
				p.log.Warn("watchdog_fired", map[string]interface{}{
					"session": sessionID,
				}, nil)
				if !send(Update{
					SessionID: sessionID,
					Status:    domain.StatusPending,
					Message:   MsgTimedOut,
					Elapsed:   p.now().Sub(start),
					TimedOut:  true,
				}) {
					return
				}

			case <-ticker.C:
				elapsed := p.now().Sub(start)
				status, err := p.status(sessionID)
				if err != nil {
					send(Update{SessionID: sessionID, Elapsed: elapsed, TimedOut: timedOut, Err: err})
					return
				}

				u := Update{
					SessionID: sessionID,
					Status:    status,
					Message:   p.message(elapsed, timedOut),
					Elapsed:   elapsed,
					TimedOut:  timedOut,
				}
				if status.Terminal() {
					u.Message = ""
					send(u)
					return
				}
				if !send(u) {
					return
				}
			}
		}
	}()

	return updates
}

// Wait blocks until the session is terminal, the watchdog has fired and the
// context expires, or polling fails. It returns the last observed update.
func (p *Poller) Wait(ctx context.Context, sessionID string) (Update, error) {
	var last Update
	for u := range p.Watch(ctx, sessionID) {
		last = u
		if u.Err != nil {
			return last, u.Err
		}
		if u.Status.Terminal() {
			return last, nil
		}
	}
	return last, ctx.Err()
}

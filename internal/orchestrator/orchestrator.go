// Package orchestrator coordinates chapter generation: it owns the session
// lifecycle, routes the transcript to the selected provider through the retry
// controller, and drives tab navigation between video and results surfaces.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joss/chapterd/internal/domain"
	"github.com/joss/chapterd/internal/logging"
	"github.com/joss/chapterd/internal/provider"
	"github.com/joss/chapterd/internal/retry"
	"github.com/joss/chapterd/internal/session"
	"github.com/joss/chapterd/internal/tabs"
	"github.com/joss/chapterd/pkg/genai"
)

// GenerateRequest is one "turn this transcript into chapters" job. SessionID
// is optional: when set, the request is a regeneration of that session and
// inherits its transcript and video context, but always gets a fresh session
// id, leaving the prior results untouched.
type GenerateRequest struct {
	SessionID          string `json:"sessionId,omitempty"`
	VideoURL           string `json:"videoUrl"`
	VideoTitle         string `json:"videoTitle,omitempty"`
	Transcript         string `json:"transcript"`
	Model              string `json:"model"`
	CustomInstructions string `json:"customInstructions,omitempty"`
	TabID              int    `json:"tabId"`
}

// Orchestrator is the sole writer of session state. Reads (status, results)
// go straight to the store and are safe under concurrent polling.
type Orchestrator struct {
	sessions *session.Store
	registry *tabs.Registry
	calls    *retry.Controller
	selector *provider.Selector

	// resultsURL is the page a new results tab opens on; the session id is
	// appended as a query parameter.
	resultsURL string

	recovery *logging.RecoveryHandler
	log      *logging.Logger
}

// New wires the orchestrator over its collaborators. Tab teardown cascades
// are installed here: a closed tab cancels its in-flight calls, and a closed
// results tab removes its session.
func New(sessions *session.Store, registry *tabs.Registry, calls *retry.Controller, selector *provider.Selector, resultsURL string) *Orchestrator {
	o := &Orchestrator{
		sessions:   sessions,
		registry:   registry,
		calls:      calls,
		selector:   selector,
		resultsURL: resultsURL,
		recovery:   logging.NewRecoveryHandler("orchestrator"),
		log:        logging.New("orchestrator"),
	}

	registry.OnTabClosed = func(tabID int) {
		calls.CancelTab(tabID)
	}
	registry.OnSessionGone = func(sessionID string) {
		sessions.Remove(sessionID)
	}

	return o
}

// Capture stores a freshly captured transcript as a pending session without
// starting generation. When the caller supplies no id, one is derived. The
// session becomes the active one and its video tab is registered.
func (o *Orchestrator) Capture(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return "", fmt.Errorf("empty transcript")
	}

	id := req.SessionID
	if id == "" {
		id = o.sessions.NewID()
	}
	stored, err := o.sessions.Put(&domain.GenerationSession{
		ID:                 id,
		VideoURL:           req.VideoURL,
		VideoTitle:         req.VideoTitle,
		Transcript:         req.Transcript,
		Model:              req.Model,
		CustomInstructions: req.CustomInstructions,
	})
	if err != nil {
		return "", err
	}

	if err := o.sessions.SetActive(stored.ID); err != nil {
		return "", err
	}
	if req.TabID != 0 && req.VideoURL != "" {
		if err := o.registry.RegisterVideoTab(stored.ID, req.TabID, req.VideoURL); err != nil {
			o.log.Warn("register_video_tab", map[string]interface{}{
				"session": stored.ID, "tab": req.TabID,
			}, err)
		}
	}
	return stored.ID, nil
}

// Generate validates the request, creates the session, and starts the
// provider call in the background. The returned session id is what the caller
// polls. Validation failures are returned directly and never create a
// session.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.SessionID != "" {
		prior, err := o.sessions.Get(req.SessionID)
		if err != nil {
			return "", fmt.Errorf("regenerate: %w", err)
		}
		if req.Transcript == "" {
			req.Transcript = prior.Transcript
		}
		if req.VideoURL == "" {
			req.VideoURL = prior.VideoURL
		}
		if req.VideoTitle == "" {
			req.VideoTitle = prior.VideoTitle
		}
		if req.Model == "" {
			req.Model = prior.Model
		}
	}

	if strings.TrimSpace(req.Transcript) == "" {
		return "", fmt.Errorf("empty transcript")
	}
	if req.Model == "" {
		return "", fmt.Errorf("no model selected")
	}

	sess := &domain.GenerationSession{
		VideoURL:           req.VideoURL,
		VideoTitle:         req.VideoTitle,
		Transcript:         req.Transcript,
		Model:              req.Model,
		CustomInstructions: req.CustomInstructions,
	}

	// A regeneration always gets a fresh id so the prior session keeps its
	// results; a first generation derives one the same way.
	stored, err := o.sessions.Create(sess)
	if err != nil {
		return "", err
	}
	id := stored.ID

	if err := o.sessions.SetActive(id); err != nil {
		return "", err
	}
	if req.TabID != 0 && req.VideoURL != "" {
		if err := o.registry.RegisterVideoTab(id, req.TabID, req.VideoURL); err != nil {
			o.log.Warn("register_video_tab", map[string]interface{}{
				"session": id, "tab": req.TabID,
			}, err)
		}
	}

	go o.recovery.Wrap(func() {
		o.run(id, req)
	})

	return id, nil
}

// run executes the provider call and records the outcome. Every failure path
// lands in CompleteError: the query interface never throws, it reports.
func (o *Orchestrator) run(id string, req GenerateRequest) {
	start := time.Now()
	log := o.log.WithSession(id).WithTab(req.TabID)

	fail := func(message string) {
		category := provider.Classify(message)
		if err := o.sessions.CompleteError(id, message, category); err != nil {
			log.Warn("record_failure", map[string]interface{}{"message": message}, err)
		}
		logging.GenerationEvent(id, req.Model, false, time.Since(start), errors.New(message))
	}

	capability, creds, err := o.selector.Resolve(req.Model)
	if err != nil {
		fail(err.Error())
		return
	}

	log.Info("generation_started", map[string]interface{}{"model": req.Model})

	result, err := capability.ProcessSubtitles(context.Background(), &genai.Request{
		Text:         req.Transcript,
		Instructions: req.CustomInstructions,
		Credentials:  creds,
		Model:        req.Model,
		CallID:       retry.NewCallID(),
		TabID:        req.TabID,
	})
	if err != nil {
		if errors.Is(err, retry.ErrCancelled) {
			fail("generation cancelled")
			return
		}
		fail(err.Error())
		return
	}

	if err := o.sessions.CompleteOK(id, result.Chapters); err != nil {
		log.Warn("record_result", nil, err)
		return
	}
	logging.GenerationEvent(id, req.Model, true, time.Since(start), nil)
}

// Status returns the session status for polling. Side-effect free.
func (o *Orchestrator) Status(id string) (domain.Status, error) {
	return o.sessions.Status(id)
}

// Session returns a full snapshot: status, result, error message, category.
func (o *Orchestrator) Session(id string) (*domain.GenerationSession, error) {
	return o.sessions.Get(id)
}

// SetResults overwrites the stored result text with the caller's edits.
func (o *Orchestrator) SetResults(id, text string) error {
	return o.sessions.SetResult(id, text)
}

// OpenResultsTab focuses the existing results tab for the session, or opens a
// new one on the results page.
func (o *Orchestrator) OpenResultsTab(ctx context.Context, id string) (tabs.Resolution, error) {
	if _, err := o.sessions.Get(id); err != nil {
		return tabs.Resolution{}, err
	}

	if tabID, ok := o.registry.ResultsTabFor(ctx, id); ok {
		if err := o.registry.Focus(ctx, tabID); err != nil {
			return tabs.Resolution{}, err
		}
		return tabs.Resolution{Method: tabs.ResolveDirect, TabID: tabID, URL: o.resultsPageURL(id)}, nil
	}

	url := o.resultsPageURL(id)
	info, err := o.registry.OpenResultsTab(ctx, id, url)
	if err != nil {
		return tabs.Resolution{}, fmt.Errorf("open results tab: %w", err)
	}
	return tabs.Resolution{Method: tabs.ResolveCreateNew, TabID: info.ID, URL: url}, nil
}

// GoBackToVideo brings the session's video tab to the front, falling back to
// opening a new tab on the last known address when the original is gone.
func (o *Orchestrator) GoBackToVideo(ctx context.Context, id string) (tabs.Resolution, error) {
	res, err := o.registry.VideoTabFor(ctx, id)
	if err != nil {
		return tabs.Resolution{}, err
	}

	switch res.Method {
	case tabs.ResolveDirect, tabs.ResolveDiscovered:
		if err := o.registry.Focus(ctx, res.TabID); err != nil {
			return tabs.Resolution{}, err
		}
	case tabs.ResolveCreateNew:
		if res.URL == "" {
			return tabs.Resolution{}, fmt.Errorf("session %s has no recorded video address", id)
		}
		info, err := o.registry.OpenVideoTab(ctx, id, res.URL)
		if err != nil {
			return tabs.Resolution{}, fmt.Errorf("reopen video tab: %w", err)
		}
		res.TabID = info.ID
	}
	return res, nil
}

// ResultsTabStatus reports whether a results tab is open, preferring the one
// whose session matches the current video tab.
func (o *Orchestrator) ResultsTabStatus(ctx context.Context, currentVideoTabID int) tabs.ResultsTabStatus {
	return o.registry.Status(ctx, currentVideoTabID)
}

// Shutdown cancels every in-flight call.
func (o *Orchestrator) Shutdown() {
	o.calls.CancelAll()
}

func (o *Orchestrator) resultsPageURL(id string) string {
	sep := "?"
	if strings.Contains(o.resultsURL, "?") {
		sep = "&"
	}
	return o.resultsURL + sep + "session=" + id
}

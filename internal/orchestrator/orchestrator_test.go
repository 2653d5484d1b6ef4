package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/chapterd/internal/domain"
	"github.com/joss/chapterd/internal/provider"
	"github.com/joss/chapterd/internal/retry"
	"github.com/joss/chapterd/internal/session"
	"github.com/joss/chapterd/internal/tabs"
	"github.com/joss/chapterd/pkg/genai"
)

// fakeCapability answers ProcessSubtitles with whatever the test installs.
type fakeCapability struct {
	id string
	fn func(req *genai.Request) (*domain.ChapterResult, error)
}

func (f *fakeCapability) ID() string   { return f.id }
func (f *fakeCapability) Name() string { return f.id }

func (f *fakeCapability) ProcessSubtitles(ctx context.Context, req *genai.Request) (*domain.ChapterResult, error) {
	return f.fn(req)
}

// fakePlatform is an in-memory tab surface.
type fakePlatform struct {
	mu     sync.Mutex
	nextID int
	open   map[int]domain.TabInfo
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{nextID: 100, open: make(map[int]domain.TabInfo)}
}

func (p *fakePlatform) Get(ctx context.Context, id int) (domain.TabInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.open[id]
	if !ok {
		return domain.TabInfo{}, tabs.ErrNoTab
	}
	return info, nil
}

func (p *fakePlatform) Query(ctx context.Context) ([]domain.TabInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int, 0, len(p.open))
	for id := range p.open {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]domain.TabInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.open[id])
	}
	return out, nil
}

func (p *fakePlatform) Create(ctx context.Context, url string, active bool) (domain.TabInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	info := domain.TabInfo{ID: p.nextID, URL: url, Active: active}
	p.open[info.ID] = info
	return info, nil
}

func (p *fakePlatform) Activate(ctx context.Context, id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.open[id]; !ok {
		return tabs.ErrNoTab
	}
	return nil
}

func (p *fakePlatform) FocusWindow(ctx context.Context, id int) error {
	return p.Activate(ctx, id)
}

func (p *fakePlatform) close(id int) {
	p.mu.Lock()
	delete(p.open, id)
	p.mu.Unlock()
}

type fixture struct {
	orch     *Orchestrator
	sessions *session.Store
	registry *tabs.Registry
	calls    *retry.Controller
	platform *fakePlatform
	cap      *fakeCapability
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	capability := &fakeCapability{
		id: "gemini",
		fn: func(req *genai.Request) (*domain.ChapterResult, error) {
			return &domain.ChapterResult{Chapters: "0:00 Intro", Model: req.Model}, nil
		},
	}
	reg := genai.NewRegistry()
	reg.Register(capability)

	sessions := session.NewStore()
	platform := newFakePlatform()
	registry := tabs.NewRegistry(platform, nil)
	calls := retry.New(nil)
	selector := provider.NewSelectorWithRegistry(reg, provider.Keys{Gemini: "test-key"})

	orch := New(sessions, registry, calls, selector, "chapterd://results")
	return &fixture{
		orch:     orch,
		sessions: sessions,
		registry: registry,
		calls:    calls,
		platform: platform,
		cap:      capability,
	}
}

func waitTerminal(t *testing.T, f *fixture, id string) *domain.GenerationSession {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := f.orch.Status(id)
		return err == nil && st.Terminal()
	}, 2*time.Second, time.Millisecond)
	sess, err := f.orch.Session(id)
	require.NoError(t, err)
	return sess
}

func videoRequest() GenerateRequest {
	return GenerateRequest{
		VideoURL:   "https://www.youtube.com/watch?v=abc123",
		VideoTitle: "Demo video",
		Transcript: "0:00 hello\n0:05 world",
		Model:      "gemini-2.0-flash",
		TabID:      7,
	}
}

func TestGenerateSuccess(t *testing.T) {
	f := newFixture(t)

	id, err := f.orch.Generate(context.Background(), videoRequest())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess := waitTerminal(t, f, id)
	assert.Equal(t, domain.StatusDone, sess.Status)
	assert.Equal(t, "0:00 Intro", sess.Result)

	// The requesting tab is registered as the session's video tab.
	res, err := f.orch.GoBackToVideo(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, tabs.ResolveCreateNew, res.Method) // tab 7 was never opened in the fake

	active, ok := f.sessions.Active()
	require.True(t, ok)
	assert.Equal(t, id, active.ID)
}

func TestGenerateFailureRecordsCategory(t *testing.T) {
	f := newFixture(t)
	f.cap.fn = func(req *genai.Request) (*domain.ChapterResult, error) {
		return nil, fmt.Errorf("Gemini API error 400: API key not valid")
	}

	id, err := f.orch.Generate(context.Background(), videoRequest())
	require.NoError(t, err)

	sess := waitTerminal(t, f, id)
	assert.Equal(t, domain.StatusError, sess.Status)
	assert.Contains(t, sess.ErrorMessage, "API key not valid")
	assert.Equal(t, domain.CategoryInvalidAPIKey, sess.ErrorCategory)
}

func TestGenerateCancellationIsError(t *testing.T) {
	f := newFixture(t)
	f.cap.fn = func(req *genai.Request) (*domain.ChapterResult, error) {
		return nil, fmt.Errorf("call %s: %w", req.CallID, retry.ErrCancelled)
	}

	id, err := f.orch.Generate(context.Background(), videoRequest())
	require.NoError(t, err)

	sess := waitTerminal(t, f, id)
	assert.Equal(t, domain.StatusError, sess.Status)
	assert.Equal(t, "generation cancelled", sess.ErrorMessage)
	assert.Equal(t, domain.CategoryGeneral, sess.ErrorCategory)
}

func TestGenerateValidation(t *testing.T) {
	f := newFixture(t)

	req := videoRequest()
	req.Transcript = "   "
	_, err := f.orch.Generate(context.Background(), req)
	require.Error(t, err)

	req = videoRequest()
	req.Model = ""
	_, err = f.orch.Generate(context.Background(), req)
	require.Error(t, err)

	// Validation failures never create sessions.
	assert.Equal(t, 0, f.sessions.Len())
}

func TestConcurrentSessionsAreIsolated(t *testing.T) {
	f := newFixture(t)

	release := make(chan struct{})
	f.cap.fn = func(req *genai.Request) (*domain.ChapterResult, error) {
		<-release
		if req.TabID == 1 {
			return nil, errors.New("quota exceeded")
		}
		return &domain.ChapterResult{Chapters: "0:00 OK"}, nil
	}

	reqA := videoRequest()
	reqA.TabID = 1
	reqA.VideoURL = "https://www.youtube.com/watch?v=aaa"
	reqB := videoRequest()
	reqB.TabID = 2
	reqB.VideoURL = "https://www.youtube.com/watch?v=bbb"

	idA, err := f.orch.Generate(context.Background(), reqA)
	require.NoError(t, err)
	idB, err := f.orch.Generate(context.Background(), reqB)
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)
	close(release)

	sessA := waitTerminal(t, f, idA)
	sessB := waitTerminal(t, f, idB)

	// One failure does not leak into the other session.
	assert.Equal(t, domain.StatusError, sessA.Status)
	assert.Equal(t, domain.CategoryRateLimit, sessA.ErrorCategory)
	assert.Equal(t, domain.StatusDone, sessB.Status)
	assert.Equal(t, "0:00 OK", sessB.Result)
}

func TestRegenerationGetsFreshSession(t *testing.T) {
	f := newFixture(t)

	id1, err := f.orch.Generate(context.Background(), videoRequest())
	require.NoError(t, err)
	first := waitTerminal(t, f, id1)
	require.Equal(t, domain.StatusDone, first.Status)

	f.cap.fn = func(req *genai.Request) (*domain.ChapterResult, error) {
		return &domain.ChapterResult{Chapters: "0:00 Better intro"}, nil
	}
	req := videoRequest()
	req.SessionID = id1
	req.CustomInstructions = "shorter titles"
	id2, err := f.orch.Generate(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	second := waitTerminal(t, f, id2)
	assert.Equal(t, "0:00 Better intro", second.Result)

	// The prior session keeps its results untouched.
	prior, err := f.orch.Session(id1)
	require.NoError(t, err)
	assert.Equal(t, "0:00 Intro", prior.Result)
}

func TestRegenerationInheritsTranscript(t *testing.T) {
	f := newFixture(t)

	id1, err := f.orch.Generate(context.Background(), videoRequest())
	require.NoError(t, err)
	waitTerminal(t, f, id1)

	// Regeneration carries no transcript of its own; it comes from the
	// prior session.
	id2, err := f.orch.Generate(context.Background(), GenerateRequest{
		SessionID: id1,
		Model:     "gemini-2.0-flash",
	})
	require.NoError(t, err)

	second := waitTerminal(t, f, id2)
	require.Equal(t, domain.StatusDone, second.Status)
	assert.Equal(t, videoRequest().Transcript, second.Transcript)
	assert.Equal(t, videoRequest().VideoURL, second.VideoURL)
}

func TestCaptureThenGenerate(t *testing.T) {
	f := newFixture(t)

	req := videoRequest()
	captured, err := f.orch.Capture(context.Background(), req)
	require.NoError(t, err)

	status, err := f.orch.Status(captured)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, status)

	// Generation references the capture and carries only the model choice.
	id, err := f.orch.Generate(context.Background(), GenerateRequest{
		SessionID: captured,
		Model:     "gemini-2.0-flash",
	})
	require.NoError(t, err)
	assert.NotEqual(t, captured, id)

	sess := waitTerminal(t, f, id)
	assert.Equal(t, domain.StatusDone, sess.Status)
	assert.Equal(t, req.Transcript, sess.Transcript)
}

func TestCaptureRejectsEmptyTranscript(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Capture(context.Background(), GenerateRequest{})
	require.Error(t, err)
}

func TestRegenerationOfUnknownSessionFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Generate(context.Background(), GenerateRequest{
		SessionID: "1700000000000",
		Model:     "gemini-2.0-flash",
	})
	require.Error(t, err)
	assert.True(t, session.IsNotFound(err))
}

func TestStatusQueriesAreSideEffectFree(t *testing.T) {
	f := newFixture(t)

	id, err := f.orch.Generate(context.Background(), videoRequest())
	require.NoError(t, err)
	waitTerminal(t, f, id)

	before, err := f.orch.Session(id)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := f.orch.Status(id)
		require.NoError(t, err)
	}
	after, err := f.orch.Session(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = f.orch.Status("nope")
	assert.True(t, session.IsNotFound(err))
}

func TestSetResultsStoresEdits(t *testing.T) {
	f := newFixture(t)

	id, err := f.orch.Generate(context.Background(), videoRequest())
	require.NoError(t, err)
	waitTerminal(t, f, id)

	require.NoError(t, f.orch.SetResults(id, "0:00 Edited"))
	sess, err := f.orch.Session(id)
	require.NoError(t, err)
	assert.Equal(t, "0:00 Edited", sess.Result)
	assert.Equal(t, domain.StatusDone, sess.Status)
}

func TestOpenResultsTabThenFocus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.orch.Generate(ctx, videoRequest())
	require.NoError(t, err)
	waitTerminal(t, f, id)

	res, err := f.orch.OpenResultsTab(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tabs.ResolveCreateNew, res.Method)
	assert.Contains(t, res.URL, "session="+id)

	// Second call finds the open tab and focuses it instead of opening
	// another.
	again, err := f.orch.OpenResultsTab(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tabs.ResolveDirect, again.Method)
	assert.Equal(t, res.TabID, again.TabID)

	status := f.orch.ResultsTabStatus(ctx, 0)
	assert.True(t, status.Open)
	assert.Equal(t, id, status.SessionID)
}

func TestClosingResultsTabRemovesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.orch.Generate(ctx, videoRequest())
	require.NoError(t, err)
	waitTerminal(t, f, id)

	res, err := f.orch.OpenResultsTab(ctx, id)
	require.NoError(t, err)

	f.platform.close(res.TabID)
	f.registry.Unregister(res.TabID)

	_, err = f.orch.Session(id)
	assert.True(t, session.IsNotFound(err))
	assert.False(t, f.orch.ResultsTabStatus(ctx, 0).Open)
}

func TestGoBackToVideoReopensClosedTab(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Open a real video tab in the fake so registration points at a live tab.
	info, err := f.platform.Create(ctx, "https://www.youtube.com/watch?v=abc123&t=42s", true)
	require.NoError(t, err)

	req := videoRequest()
	req.TabID = info.ID
	id, err := f.orch.Generate(ctx, req)
	require.NoError(t, err)
	waitTerminal(t, f, id)

	res, err := f.orch.GoBackToVideo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tabs.ResolveDirect, res.Method)
	assert.Equal(t, info.ID, res.TabID)

	// Close the tab: the next call opens a fresh one on the recorded address.
	f.platform.close(info.ID)
	res, err = f.orch.GoBackToVideo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tabs.ResolveCreateNew, res.Method)
	assert.NotZero(t, res.TabID)
	assert.Contains(t, res.URL, "youtube.com/watch")
}

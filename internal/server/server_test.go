package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/chapterd/internal/domain"
	"github.com/joss/chapterd/internal/orchestrator"
	"github.com/joss/chapterd/internal/provider"
	"github.com/joss/chapterd/internal/retry"
	"github.com/joss/chapterd/internal/session"
	"github.com/joss/chapterd/internal/tabs"
	"github.com/joss/chapterd/pkg/genai"
)

type fakeCapability struct {
	fn func(req *genai.Request) (*domain.ChapterResult, error)
}

func (f *fakeCapability) ID() string   { return "gemini" }
func (f *fakeCapability) Name() string { return "gemini" }

func (f *fakeCapability) ProcessSubtitles(ctx context.Context, req *genai.Request) (*domain.ChapterResult, error) {
	return f.fn(req)
}

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

func (p *fakePlatform) Activate(ctx context.Context, id int) error    { return nil }
func (p *fakePlatform) FocusWindow(ctx context.Context, id int) error { return nil }

type memSettings struct {
	mu   sync.Mutex
	vals map[string]string
}

func (m *memSettings) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	if !ok {
		return "", fmt.Errorf("setting %q not found", key)
	}
	return v, nil
}

func (m *memSettings) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value
	return nil
}

type fixture struct {
	srv      *httptest.Server
	cap      *fakeCapability
	settings *memSettings
	server   *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	capability := &fakeCapability{
		fn: func(req *genai.Request) (*domain.ChapterResult, error) {
			return &domain.ChapterResult{Chapters: "0:00 Intro\n1:30 Main"}, nil
		},
	}
	reg := genai.NewRegistry()
	reg.Register(capability)

	orch := orchestrator.New(
		session.NewStore(),
		tabs.NewRegistry(newFakePlatform(), nil),
		retry.New(nil),
		provider.NewSelectorWithRegistry(reg, provider.Keys{Gemini: "k"}),
		"chapterd://results",
	)

	settings := &memSettings{vals: make(map[string]string)}
	s := New(orch, settings, "127.0.0.1:0")
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, cap: capability, settings: settings, server: s}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var payload map[string]any
	if resp.StatusCode != http.StatusNoContent {
		json.NewDecoder(resp.Body).Decode(&payload)
	}
	return resp, payload
}

func generateBody() map[string]any {
	return map[string]any{
		"videoUrl":   "https://www.youtube.com/watch?v=abc",
		"videoTitle": "Demo",
		"transcript": "0:00 hello",
		"model":      "gemini-2.0-flash",
		"tabId":      5,
	}
}

func (f *fixture) generateAndWait(t *testing.T) string {
	t.Helper()

	resp, payload := f.do(t, "POST", "/generate", generateBody())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id, _ := payload["sessionId"].(string)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		_, p := f.do(t, "GET", "/sessions/"+id+"/status", nil)
		st, _ := p["status"].(string)
		return st == "done" || st == "error"
	}, 2*time.Second, 5*time.Millisecond)
	return id
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, payload := f.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", payload["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestCaptureThenGenerateBySessionID(t *testing.T) {
	f := newFixture(t)

	resp, payload := f.do(t, "POST", "/sessions", generateBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	captured, _ := payload["sessionId"].(string)
	require.NotEmpty(t, captured)

	resp, p := f.do(t, "GET", "/sessions/"+captured+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", p["status"])

	// Generate against the capture: no transcript in the request body.
	resp, payload = f.do(t, "POST", "/generate", map[string]any{
		"sessionId": captured,
		"model":     "gemini-2.0-flash",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id, _ := payload["sessionId"].(string)
	require.NotEmpty(t, id)
	assert.NotEqual(t, captured, id)

	require.Eventually(t, func() bool {
		_, p := f.do(t, "GET", "/sessions/"+id+"/status", nil)
		st, _ := p["status"].(string)
		return st == "done"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCaptureRejectsEmptyTranscript(t *testing.T) {
	f := newFixture(t)

	resp, payload := f.do(t, "POST", "/sessions", map[string]any{"model": "gemini-2.0-flash"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, payload["error"], "transcript")
}

func TestGenerateAndPoll(t *testing.T) {
	f := newFixture(t)

	id := f.generateAndWait(t)
	resp, payload := f.do(t, "GET", "/sessions/"+id+"/results", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "done", payload["status"])
	assert.Equal(t, "0:00 Intro\n1:30 Main", payload["result"])
	assert.Equal(t, "Demo", payload["videoTitle"])
}

func TestGenerateValidationError(t *testing.T) {
	f := newFixture(t)

	body := generateBody()
	body["transcript"] = ""
	resp, payload := f.do(t, "POST", "/generate", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, payload["error"], "empty transcript")
}

func TestStatusNotFound(t *testing.T) {
	f := newFixture(t)

	resp, payload := f.do(t, "GET", "/sessions/12345/status", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, payload["error"], "session not found")
}

func TestFailureReportedAsPayload(t *testing.T) {
	f := newFixture(t)
	f.cap.fn = func(req *genai.Request) (*domain.ChapterResult, error) {
		return nil, fmt.Errorf("Gemini API error 429: quota exceeded")
	}

	id := f.generateAndWait(t)

	// The failure lives on the session and comes back as data, with the
	// category and a suggestion attached.
	resp, payload := f.do(t, "GET", "/sessions/"+id+"/results", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "error", payload["status"])
	assert.Equal(t, "rate_limit", payload["category"])
	assert.NotEmpty(t, payload["suggestion"])
}

func TestSetResultsRoundTrip(t *testing.T) {
	f := newFixture(t)
	id := f.generateAndWait(t)

	resp, _ := f.do(t, "PUT", "/sessions/"+id+"/results", map[string]string{"result": "0:00 Edited"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, payload := f.do(t, "GET", "/sessions/"+id+"/results", nil)
	assert.Equal(t, "0:00 Edited", payload["result"])
}

func TestResultsTabEndpoints(t *testing.T) {
	f := newFixture(t)
	id := f.generateAndWait(t)

	resp, payload := f.do(t, "POST", "/sessions/"+id+"/results-tab", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "create_new", payload["method"])
	assert.Contains(t, payload["url"], "session="+id)

	resp, payload = f.do(t, "GET", "/results-tab-status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["open"])
	assert.Equal(t, id, payload["sessionId"])
}

func TestBackToVideoNotFound(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "POST", "/sessions/999/back-to-video", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newFixture(t)

	var changed bool
	f.server.OnSettingsChanged = func() { changed = true }

	resp, _ := f.do(t, "PUT", "/settings/default_model", map[string]string{"value": "gemini-2.0-flash"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, changed)

	resp, payload := f.do(t, "GET", "/settings/default_model", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gemini-2.0-flash", payload["value"])

	resp, _ = f.do(t, "GET", "/settings/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, fn func()) []Event {
	t.Helper()

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	fn()

	var events []Event
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e Event
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		events = append(events, e)
	}
	return events
}

func TestLoggerFields(t *testing.T) {
	events := capture(t, func() {
		log := New("tabs").WithSession("1700000000000").WithTab(10)
		log.Info("results_tab_closed", map[string]interface{}{"reason": "unregister"})
	})

	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, LevelInfo, e.Level)
	assert.Equal(t, "tabs", e.Component)
	assert.Equal(t, "results_tab_closed", e.Event)
	assert.Equal(t, "1700000000000", e.Session)
	assert.Equal(t, 10, e.Tab)
	assert.Equal(t, "unregister", e.Extra["reason"])
}

func TestLoggerError(t *testing.T) {
	events := capture(t, func() {
		New("retry").Error("fetch_failed", nil, errors.New("HTTP 503"))
	})

	require.Len(t, events, 1)
	assert.Equal(t, LevelError, events[0].Level)
	assert.Equal(t, "HTTP 503", events[0].Error)
}

func TestGenerationEvent(t *testing.T) {
	events := capture(t, func() {
		GenerationEvent("123", "gemini-2.5-flash", false, 250*time.Millisecond, errors.New("rate limited"))
	})

	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, LevelError, e.Level)
	assert.Equal(t, "generation", e.Event)
	assert.Equal(t, "123", e.Session)
	assert.Equal(t, "gemini-2.5-flash", e.Extra["model"])
	assert.Equal(t, false, e.Extra["success"])
}

func TestRecoveryHandler(t *testing.T) {
	var panicked interface{}
	h := NewRecoveryHandler("orchestrator")
	h.OnPanic = func(err interface{}, stack string) { panicked = err }

	events := capture(t, func() {
		h.Wrap(func() { panic("boom") })
	})

	assert.Equal(t, "boom", panicked)
	require.Len(t, events, 1)
	assert.Equal(t, "panic_recovered", events[0].Event)
}

func TestWrapErrorReturnsPanic(t *testing.T) {
	h := NewRecoveryHandler("poller")

	capture(t, func() {
		err := h.WrapError(func() error { panic("teardown race") })
		assert.ErrorContains(t, err, "teardown race")
	})

	err := h.WrapError(func() error { return nil })
	assert.NoError(t, err)
}

// Package server exposes the orchestrator operations over a local HTTP/JSON
// surface for the popup and results pages. Failures are recorded on the
// session and reported as JSON payloads, never thrown across the query
// interface.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/joss/chapterd/internal/logging"
	"github.com/joss/chapterd/internal/orchestrator"
	"github.com/joss/chapterd/internal/provider"
	"github.com/joss/chapterd/internal/session"
)

// SettingsStore is the slice of the settings layer the HTTP surface needs.
type SettingsStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Server provides the local HTTP API for chapterd.
type Server struct {
	orch     *orchestrator.Orchestrator
	settings SettingsStore
	mux      *http.ServeMux
	addr     string
	log      *logging.Logger

	// OnSettingsChanged runs after a successful settings write, so credential
	// slots can be refreshed without restarting.
	OnSettingsChanged func()
}

func New(orch *orchestrator.Orchestrator, settings SettingsStore, addr string) *Server {
	s := &Server{
		orch:     orch,
		settings: settings,
		mux:      http.NewServeMux(),
		addr:     addr,
		log:      logging.New("server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /sessions", s.handleCapture)
	s.mux.HandleFunc("POST /generate", s.handleGenerate)
	s.mux.HandleFunc("GET /sessions/{id}/status", s.handleStatus)
	s.mux.HandleFunc("GET /sessions/{id}/results", s.handleGetResults)
	s.mux.HandleFunc("PUT /sessions/{id}/results", s.handleSetResults)
	s.mux.HandleFunc("POST /sessions/{id}/results-tab", s.handleOpenResultsTab)
	s.mux.HandleFunc("POST /sessions/{id}/back-to-video", s.handleBackToVideo)
	s.mux.HandleFunc("GET /results-tab-status", s.handleResultsTabStatus)
	s.mux.HandleFunc("GET /settings/{key}", s.handleGetSetting)
	s.mux.HandleFunc("PUT /settings/{key}", s.handleSetSetting)
}

// Handler wraps the mux with request-id tagging and JSON content type.
func (s *Server) Handler() http.Handler {
	return s.requestID(JSON(s.mux))
}

// Serve runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("listening", map[string]interface{}{"addr": s.addr})
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// requestID tags every request with a fresh id for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", map[string]interface{}{
			"id":          id,
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

// JSON sets the response content type.
func JSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type errorPayload struct {
	Error      string `json:"error"`
	Category   string `json:"category,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	category := provider.Classify(err.Error())
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorPayload{
		Error:      err.Error(),
		Category:   string(category),
		Suggestion: provider.Suggestion(category),
	})
}

func (s *Server) statusFor(err error) int {
	if session.IsNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleCapture stores a captured transcript as a pending session. The
// content surface calls this the moment the transcript is read; generation
// starts later, possibly several times against the same capture.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.orch.Capture(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"sessionId": id})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.orch.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"sessionId": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	status, err := s.orch.Status(id)
	if err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{
		"sessionId": id,
		"status":    string(status),
	})
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.orch.Session(id)
	if err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	resp := map[string]interface{}{
		"sessionId":  sess.ID,
		"status":     string(sess.Status),
		"videoUrl":   sess.VideoURL,
		"videoTitle": sess.VideoTitle,
		"model":      sess.Model,
		"result":     sess.Result,
	}
	if sess.ErrorMessage != "" {
		resp["error"] = sess.ErrorMessage
		resp["category"] = string(sess.ErrorCategory)
		resp["suggestion"] = provider.Suggestion(sess.ErrorCategory)
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleSetResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.orch.SetResults(id, req.Result); err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpenResultsTab(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	res, err := s.orch.OpenResultsTab(r.Context(), id)
	if err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	json.NewEncoder(w).Encode(res)
}

func (s *Server) handleBackToVideo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	res, err := s.orch.GoBackToVideo(r.Context(), id)
	if err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	json.NewEncoder(w).Encode(res)
}

func (s *Server) handleResultsTabStatus(w http.ResponseWriter, r *http.Request) {
	tabID, _ := strconv.Atoi(r.URL.Query().Get("tab"))
	status := s.orch.ResultsTabStatus(r.Context(), tabID)
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	value, err := s.settings.Get(key)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"key": key, "value": value})
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.settings.Set(key, req.Value); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.OnSettingsChanged != nil {
		s.OnSettingsChanged()
	}

	w.WriteHeader(http.StatusNoContent)
}

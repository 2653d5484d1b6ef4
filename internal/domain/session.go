// Package domain defines core entities for chapterd: generation sessions,
// browser tabs, and chapter results.
package domain

import "time"

// Status is the lifecycle state of a generation session.
// Transitions are monotonic: pending→done or pending→error, never reversed.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// ErrorCategory buckets a failure message into a user-facing suggestion class.
// Categories never drive control flow.
type ErrorCategory string

const (
	CategoryInvalidAPIKey        ErrorCategory = "invalid_api_key"
	CategoryRateLimit            ErrorCategory = "rate_limit"
	CategoryFreeModelUnavailable ErrorCategory = "free_model_unavailable"
	CategoryContentTooLong       ErrorCategory = "content_too_long"
	CategoryContentFiltered      ErrorCategory = "content_filtered"
	CategoryGeneral              ErrorCategory = "general_error"
)

// GenerationSession is one chapter-generation request/response lifecycle.
// Sessions are ephemeral: in-memory only, lost on restart.
type GenerationSession struct {
	ID                 string        `json:"id"`
	VideoURL           string        `json:"videoURL"`
	VideoTitle         string        `json:"videoTitle,omitempty"`
	Transcript         string        `json:"transcript"`
	Model              string        `json:"model"`
	CustomInstructions string        `json:"customInstructions,omitempty"`
	Status             Status        `json:"status"`
	Result             string        `json:"result,omitempty"`
	ErrorMessage       string        `json:"errorMessage,omitempty"`
	ErrorCategory      ErrorCategory `json:"errorCategory,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
}

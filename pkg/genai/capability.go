// Package genai defines the "generate chapters from text" capability that
// every LLM backend implements. One flat interface per provider over a shared
// retry helper; no inheritance hierarchy.
package genai

import (
	"context"

	"github.com/joss/chapterd/internal/domain"
)

// Credentials is the API key for one provider slot.
type Credentials struct {
	APIKey string
}

// Request carries one subtitle-processing call. CallID and TabID tag the
// outbound network call so closing the requesting tab cancels it.
type Request struct {
	Text         string
	Instructions string
	Credentials  Credentials
	Model        string
	CallID       string
	TabID        int
}

// Capability turns a transcript into chapter timecodes.
type Capability interface {
	ID() string
	Name() string

	// ProcessSubtitles sends the transcript to the backend and returns the
	// chapter text with the model's finish reason.
	ProcessSubtitles(ctx context.Context, req *Request) (*domain.ChapterResult, error)
}

// Registry holds all available capabilities.
type Registry struct {
	capabilities map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{
		capabilities: make(map[string]Capability),
	}
}

func (r *Registry) Register(c Capability) {
	r.capabilities[c.ID()] = c
}

func (r *Registry) Get(id string) (Capability, bool) {
	c, ok := r.capabilities[id]
	return c, ok
}

func (r *Registry) List() []Capability {
	result := make([]Capability, 0, len(r.capabilities))
	for _, c := range r.capabilities {
		result = append(result, c)
	}
	return result
}

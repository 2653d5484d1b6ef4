package provider

import (
	"fmt"
	"strings"
	"sync"

	"github.com/joss/chapterd/internal/retry"
	"github.com/joss/chapterd/pkg/genai"
)

// Keys holds the per-provider credential slots. The slots are disjoint: a
// Gemini model never sees the OpenRouter key and vice versa.
type Keys struct {
	Gemini     string
	OpenRouter string
}

// Selector routes a model identifier to its capability and credential slot.
type Selector struct {
	registry *genai.Registry

	mu   sync.Mutex
	keys Keys
}

// NewSelector builds the default registry (Gemini and OpenRouter over the
// shared retry controller) with the given credential slots.
func NewSelector(fetcher *retry.Controller, keys Keys) *Selector {
	reg := genai.NewRegistry()
	reg.Register(NewGemini(fetcher))
	reg.Register(NewOpenRouter(fetcher))
	return &Selector{registry: reg, keys: keys}
}

// NewSelectorWithRegistry is for tests that inject fake capabilities.
func NewSelectorWithRegistry(registry *genai.Registry, keys Keys) *Selector {
	return &Selector{registry: registry, keys: keys}
}

// providerFor maps a model id to a capability id. Bare "gemini-*" ids are
// Google models; vendor-prefixed ids ("google/...", "openai/...") route
// through OpenRouter.
func providerFor(model string) string {
	if strings.Contains(model, "/") {
		return "openrouter"
	}
	if strings.HasPrefix(model, "gemini") {
		return "gemini"
	}
	return ""
}

// Resolve returns the capability for a model together with the credentials
// from its slot. Unknown model shapes and missing keys are validation errors
// surfaced before any network call.
func (s *Selector) Resolve(model string) (genai.Capability, genai.Credentials, error) {
	id := providerFor(model)
	if id == "" {
		return nil, genai.Credentials{}, fmt.Errorf("unknown model %q", model)
	}
	c, ok := s.registry.Get(id)
	if !ok {
		return nil, genai.Credentials{}, fmt.Errorf("provider %q not registered", id)
	}

	s.mu.Lock()
	var key string
	switch id {
	case "gemini":
		key = s.keys.Gemini
	case "openrouter":
		key = s.keys.OpenRouter
	}
	s.mu.Unlock()
	if key == "" {
		return nil, genai.Credentials{}, fmt.Errorf("no API key configured for %s", c.Name())
	}
	return c, genai.Credentials{APIKey: key}, nil
}

// SetKeys replaces the credential slots (settings updates at runtime).
func (s *Selector) SetKeys(keys Keys) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

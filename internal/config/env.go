// Package config provides centralized configuration management.
// All environment lookups go through here instead of scattered os.Getenv
// calls.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ChapterdEnv holds all chapterd environment variables.
type ChapterdEnv struct {
	// Addr is the local HTTP listen address (CHAPTERD_ADDR)
	Addr string

	// GeminiKey is the Google Gemini API key (GEMINI_API_KEY)
	GeminiKey string

	// OpenRouterKey is the OpenRouter API key (OPENROUTER_API_KEY)
	OpenRouterKey string

	// Model is the default model identifier (CHAPTERD_MODEL)
	Model string

	// DataDir overrides the settings database location (CHAPTERD_DATA_DIR)
	DataDir string

	// Headless controls whether the browser runs without a window
	// (CHAPTERD_HEADLESS)
	Headless bool

	// ResultsURL is the page new results tabs open on (CHAPTERD_RESULTS_URL)
	ResultsURL string

	// VideoPatterns are comma-separated glob patterns for video watch pages
	// (CHAPTERD_VIDEO_PATTERNS); empty means the built-in defaults.
	VideoPatterns []string
}

var (
	env     *ChapterdEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *ChapterdEnv {
	envOnce.Do(func() {
		env = &ChapterdEnv{
			Addr:          getEnvDefault("CHAPTERD_ADDR", "127.0.0.1:8972"),
			GeminiKey:     os.Getenv("GEMINI_API_KEY"),
			OpenRouterKey: os.Getenv("OPENROUTER_API_KEY"),
			Model:         getEnvDefault("CHAPTERD_MODEL", "gemini-2.0-flash"),
			DataDir:       os.Getenv("CHAPTERD_DATA_DIR"),
			Headless:      os.Getenv("CHAPTERD_HEADLESS") != "0",
			ResultsURL:    getEnvDefault("CHAPTERD_RESULTS_URL", "http://127.0.0.1:8972/results"),
			VideoPatterns: splitList(os.Getenv("CHAPTERD_VIDEO_PATTERNS")),
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Paths holds standard chapterd directory paths.
type Paths struct {
	// Home is the chapterd home directory (~/.chapterd)
	Home string

	// Data is the data directory (~/.chapterd/data)
	Data string

	// Logs is the log directory (~/.chapterd/logs)
	Logs string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration. CHAPTERD_DATA_DIR
// overrides the data directory.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		chapterdHome := filepath.Join(home, ".chapterd")

		data := filepath.Join(chapterdHome, "data")
		if dir := Env().DataDir; dir != "" {
			data = dir
		}

		paths = &Paths{
			Home: chapterdHome,
			Data: data,
			Logs: filepath.Join(chapterdHome, "logs"),
		}
	})
	return paths
}

// ResetPaths resets the cached paths (for testing).
func ResetPaths() {
	pathsOnce = sync.Once{}
	paths = nil
}

// Path returns a path under the chapterd home directory.
func Path(parts ...string) string {
	p := GetPaths()
	allParts := append([]string{p.Home}, parts...)
	return filepath.Join(allParts...)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

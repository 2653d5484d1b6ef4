package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnv(t *testing.T) {
	// Reset env for clean test
	ResetEnv()

	os.Setenv("CHAPTERD_ADDR", "127.0.0.1:9999")
	os.Setenv("GEMINI_API_KEY", "gk")
	os.Setenv("OPENROUTER_API_KEY", "ok")
	os.Setenv("CHAPTERD_HEADLESS", "0")
	defer func() {
		os.Unsetenv("CHAPTERD_ADDR")
		os.Unsetenv("GEMINI_API_KEY")
		os.Unsetenv("OPENROUTER_API_KEY")
		os.Unsetenv("CHAPTERD_HEADLESS")
		ResetEnv()
	}()

	env := Env()

	assert.Equal(t, "127.0.0.1:9999", env.Addr)
	assert.Equal(t, "gk", env.GeminiKey)
	assert.Equal(t, "ok", env.OpenRouterKey)
	assert.False(t, env.Headless)
}

func TestEnvDefaults(t *testing.T) {
	ResetEnv()

	os.Unsetenv("CHAPTERD_ADDR")
	os.Unsetenv("CHAPTERD_MODEL")
	os.Unsetenv("CHAPTERD_HEADLESS")
	defer ResetEnv()

	env := Env()

	assert.Equal(t, "127.0.0.1:8972", env.Addr)
	assert.Equal(t, "gemini-2.0-flash", env.Model)
	assert.True(t, env.Headless)
	assert.Contains(t, env.ResultsURL, "/results")
}

func TestEnvVideoPatterns(t *testing.T) {
	ResetEnv()
	os.Setenv("CHAPTERD_VIDEO_PATTERNS", "vimeo.com/**, dailymotion.com/video/**")
	defer func() {
		os.Unsetenv("CHAPTERD_VIDEO_PATTERNS")
		ResetEnv()
	}()

	env := Env()
	assert.Equal(t, []string{"vimeo.com/**", "dailymotion.com/video/**"}, env.VideoPatterns)
}

func TestEnvVideoPatternsEmpty(t *testing.T) {
	ResetEnv()
	os.Unsetenv("CHAPTERD_VIDEO_PATTERNS")
	defer ResetEnv()

	assert.Nil(t, Env().VideoPatterns)
}

func TestEnvSingleton(t *testing.T) {
	ResetEnv()
	defer ResetEnv()

	env1 := Env()
	env2 := Env()

	// Should return same instance
	assert.Same(t, env1, env2)
}

func TestResetEnv(t *testing.T) {
	os.Setenv("CHAPTERD_MODEL", "first")
	ResetEnv()
	env1 := Env()
	assert.Equal(t, "first", env1.Model)

	os.Setenv("CHAPTERD_MODEL", "second")
	ResetEnv()

	env2 := Env()
	assert.Equal(t, "second", env2.Model)

	// Cleanup
	os.Unsetenv("CHAPTERD_MODEL")
	ResetEnv()
}

func TestGetEnvDefault(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"env set", "TEST_KEY", "value", "default", "value"},
		{"env empty", "TEST_KEY", "", "default", "default"},
		{"env not set", "TEST_KEY_NOTSET", "", "fallback", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envVal != "" {
				os.Setenv(tt.key, tt.envVal)
				defer os.Unsetenv(tt.key)
			}
			got := getEnvDefault(tt.key, tt.fallback)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetPaths(t *testing.T) {
	ResetEnv()
	ResetPaths()
	os.Unsetenv("CHAPTERD_DATA_DIR")
	defer func() {
		ResetEnv()
		ResetPaths()
	}()

	paths := GetPaths()

	assert.NotEmpty(t, paths.Home)
	assert.Contains(t, paths.Home, ".chapterd")
	assert.Equal(t, filepath.Join(paths.Home, "data"), paths.Data)
	assert.Equal(t, filepath.Join(paths.Home, "logs"), paths.Logs)
}

func TestDataDirOverride(t *testing.T) {
	ResetEnv()
	ResetPaths()
	os.Setenv("CHAPTERD_DATA_DIR", "/tmp/chapterd-data")
	defer func() {
		os.Unsetenv("CHAPTERD_DATA_DIR")
		ResetEnv()
		ResetPaths()
	}()

	paths := GetPaths()
	assert.Equal(t, "/tmp/chapterd-data", paths.Data)
}

func TestPath(t *testing.T) {
	ResetEnv()
	ResetPaths()
	defer func() {
		ResetEnv()
		ResetPaths()
	}()

	result := Path("subdir", "file.txt")

	assert.Contains(t, result, ".chapterd")
	assert.Contains(t, result, "subdir")
	assert.Contains(t, result, "file.txt")
}

func TestEnsureDir(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "nested", "dir")

	err := EnsureDir(tempDir)
	assert.NoError(t, err)

	info, err := os.Stat(tempDir)
	assert.NoError(t, err)
	assert.True(t, info.IsDir())

	// Running again should be idempotent
	err = EnsureDir(tempDir)
	assert.NoError(t, err)
}

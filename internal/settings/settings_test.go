package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Set(KeyDefaultModel, "gemini-2.0-flash"))
	got, err := s.Get(KeyDefaultModel)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", got)

	// Overwrite.
	require.NoError(t, s.Set(KeyDefaultModel, "openai/gpt-4o-mini"))
	got, err = s.Get(KeyDefaultModel)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", got)
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "fallback", s.GetDefault("nope", "fallback"))
}

func TestDeleteAndKeys(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Set(KeyGeminiAPIKey, "g"))
	require.NoError(t, s.Set(KeyOpenRouterAPIKey, "o"))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{KeyGeminiAPIKey, KeyOpenRouterAPIKey}, keys)

	require.NoError(t, s.Delete(KeyGeminiAPIKey))
	require.NoError(t, s.Delete(KeyGeminiAPIKey)) // absent key: no error

	_, err = s.Get(KeyGeminiAPIKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPresets(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.SavePreset(Preset{Name: "short", Instructions: "short titles"}))
	require.NoError(t, s.SavePreset(Preset{Name: "detail", Instructions: "detailed titles"}))

	p, err := s.GetPreset("short")
	require.NoError(t, err)
	assert.Equal(t, "short titles", p.Instructions)
	assert.False(t, p.UpdatedAt.IsZero())

	// Upsert by name.
	require.NoError(t, s.SavePreset(Preset{Name: "short", Instructions: "shorter"}))
	p, err = s.GetPreset("short")
	require.NoError(t, err)
	assert.Equal(t, "shorter", p.Instructions)

	all, err := s.ListPresets()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeletePreset("detail"))
	_, err = s.GetPreset("detail")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.SavePreset(Preset{Instructions: "unnamed"}))
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyDefaultModel, "gemini-2.0-flash"))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(KeyDefaultModel)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", got)
}

// Package settings persists user configuration in SQLite: provider API keys,
// the default model, and saved instruction presets. Generation sessions never
// touch this store; they live and die in memory.
package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Well-known setting keys.
const (
	KeyGeminiAPIKey     = "gemini_api_key"
	KeyOpenRouterAPIKey = "openrouter_api_key"
	KeyDefaultModel     = "default_model"
)

// ErrNotFound indicates the key or preset does not exist.
var ErrNotFound = errors.New("setting not found")

// Preset is a saved custom-instructions snippet, selectable by name.
type Preset struct {
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store is the SQLite-backed settings store.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the data directory if needed and opens (or creates) the
// settings database inside it.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "chapterd.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS presets (
		name TEXT PRIMARY KEY,
		instructions TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value for a key, or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return value, err
}

// GetDefault returns the value for a key, falling back when unset.
func (s *Store) GetDefault(key, fallback string) string {
	value, err := s.Get(key)
	if err != nil {
		return fallback
	}
	return value
}

// Set writes a key, overwriting any previous value.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	return err
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// Keys lists all stored setting keys.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// SavePreset stores a named instructions preset.
func (s *Store) SavePreset(p Preset) error {
	if p.Name == "" {
		return fmt.Errorf("preset name required")
	}
	_, err := s.db.Exec(`
		INSERT INTO presets (name, instructions, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET instructions = excluded.instructions, updated_at = excluded.updated_at
	`, p.Name, p.Instructions, time.Now())
	return err
}

// GetPreset returns a preset by name, or ErrNotFound.
func (s *Store) GetPreset(name string) (Preset, error) {
	var p Preset
	err := s.db.QueryRow(`
		SELECT name, instructions, updated_at FROM presets WHERE name = ?
	`, name).Scan(&p.Name, &p.Instructions, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return Preset{}, fmt.Errorf("%w: preset %s", ErrNotFound, name)
	}
	return p, err
}

// ListPresets returns all presets, newest first.
func (s *Store) ListPresets() ([]Preset, error) {
	rows, err := s.db.Query(`
		SELECT name, instructions, updated_at FROM presets ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presets []Preset
	for rows.Next() {
		var p Preset
		if err := rows.Scan(&p.Name, &p.Instructions, &p.UpdatedAt); err != nil {
			return nil, err
		}
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// DeletePreset removes a preset by name.
func (s *Store) DeletePreset(name string) error {
	_, err := s.db.Exec(`DELETE FROM presets WHERE name = ?`, name)
	return err
}

// Package db persists user preferences and the trip plan in DuckDB.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-trip/internal/store"
)

// Config holds database configuration.
type Config struct {
	// DataDir holds the database file. Empty means an in-memory database.
	DataDir string
	DBName  string
	// Extensions are installed and loaded on open. Failures are logged.
	Extensions []string
}

const (
	keyPreferences = "preferences"
	keyPlan        = "plan"
)

// Preferences are the UI settings remembered between sessions.
type Preferences struct {
	ViewMode         store.Mode    `json:"viewMode" enum:"discover,plan,ai" doc:"Active map mode"`
	SidebarCollapsed bool          `json:"sidebarCollapsed" doc:"Whether the desktop sidebar is collapsed"`
	Filters          store.Filters `json:"filters" doc:"Discovery filters"`
}

// DefaultPreferences are used when nothing was saved yet.
func DefaultPreferences() Preferences {
	return Preferences{ViewMode: store.ModeDiscover}
}

// Repository reads and writes the settings table.
type Repository struct {
	db  *sql.DB
	log *zap.Logger
	mu  sync.Mutex
}

// Open opens (creating if needed) the database and its schema.
func Open(cfg Config, log *zap.Logger) (*Repository, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("db")

	dsn := ""
	if cfg.DataDir != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "trip"
		}
		dsn = filepath.Join(duckdbDir, name+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	for _, ext := range cfg.Extensions {
		if _, err := conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			log.Warn("duckdb extension not loaded", zap.String("extension", ext), zap.Error(err))
		}
	}
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key   VARCHAR PRIMARY KEY,
		value VARCHAR NOT NULL
	)`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	log.Debug("database ready", zap.String("path", dsn))
	return &Repository{db: conn, log: log}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// LoadPreferences returns the saved preferences, or the defaults when none
// were saved. Unknown modes fall back to discover.
func (r *Repository) LoadPreferences(ctx context.Context) (Preferences, error) {
	p := DefaultPreferences()
	found, err := r.get(ctx, keyPreferences, &p)
	if err != nil || !found {
		return DefaultPreferences(), err
	}
	if !p.ViewMode.Valid() {
		p.ViewMode = store.ModeDiscover
	}
	return p, nil
}

// SavePreferences stores p.
func (r *Repository) SavePreferences(ctx context.Context, p Preferences) error {
	return r.put(ctx, keyPreferences, p)
}

// LoadPlan returns the saved hub places; nil when none were saved.
func (r *Repository) LoadPlan(ctx context.Context) ([]store.HubPlace, error) {
	var places []store.HubPlace
	if _, err := r.get(ctx, keyPlan, &places); err != nil {
		return nil, err
	}
	return places, nil
}

// SavePlan stores a snapshot of the hub places.
func (r *Repository) SavePlan(ctx context.Context, places []store.HubPlace) error {
	if places == nil {
		places = []store.HubPlace{}
	}
	return r.put(ctx, keyPlan, places)
}

func (r *Repository) get(ctx context.Context, key string, out any) (bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Repository) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.db.ExecContext(ctx, "INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, string(raw)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

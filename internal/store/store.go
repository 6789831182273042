// Package store persists named capture artifacts: one baseline and one
// actual row per name in SQLite, with pixel-mode image bytes on disk at
// name-keyed paths next to the database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/visor/artifact"
	"github.com/hazyhaar/visor/internal/dbopen"
)

// ErrNotFound is returned when no artifact exists under a name/kind.
// A missing baseline is expected on first capture; callers branch on this.
var ErrNotFound = errors.New("store: artifact not found")

// Kind distinguishes the two rows an artifact name can hold.
type Kind string

const (
	KindBaseline Kind = "baseline"
	KindActual   Kind = "actual"
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	name        TEXT NOT NULL,
	kind        TEXT NOT NULL CHECK (kind IN ('baseline', 'actual')),
	id          TEXT NOT NULL,
	mode        TEXT NOT NULL,
	hash        TEXT NOT NULL DEFAULT '',
	layer_count INTEGER NOT NULL DEFAULT 0,
	commands    TEXT,
	image_ref   TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	viewport_w  INTEGER NOT NULL DEFAULT 0,
	viewport_h  INTEGER NOT NULL DEFAULT 0,
	user_agent  TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	PRIMARY KEY (name, kind)
);
`

// Store is the artifact repository.
type Store struct {
	db       *sql.DB
	imageDir string
}

// Open opens (creating if needed) the artifact database and image
// directory.
func Open(dbPath, imageDir string) (*Store, error) {
	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: mkdir image dir: %w", err)
	}
	return &Store{db: db, imageDir: imageDir}, nil
}

// New wraps an existing database handle, applying the schema. Used in
// tests with dbopen.OpenMemory.
func New(db *sql.DB, imageDir string) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir image dir: %w", err)
	}
	return &Store{db: db, imageDir: imageDir}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts an artifact under (name, kind).
func (s *Store) Save(ctx context.Context, kind Kind, a *artifact.Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}

	var commands any // NULL in pixel mode
	if a.Mode == artifact.ModeCompositor {
		data, err := json.Marshal(a.Commands)
		if err != nil {
			return fmt.Errorf("store: marshal commands: %w", err)
		}
		commands = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts
			(name, kind, id, mode, hash, layer_count, commands, image_ref,
			 url, viewport_w, viewport_h, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, kind) DO UPDATE SET
			id = excluded.id, mode = excluded.mode, hash = excluded.hash,
			layer_count = excluded.layer_count, commands = excluded.commands,
			image_ref = excluded.image_ref, url = excluded.url,
			viewport_w = excluded.viewport_w, viewport_h = excluded.viewport_h,
			user_agent = excluded.user_agent, created_at = excluded.created_at`,
		a.Name, string(kind), a.ID, string(a.Mode), a.Hash, a.LayerCount,
		commands, a.ImageRef, a.Metadata.URL,
		a.Metadata.Viewport.Width, a.Metadata.Viewport.Height,
		a.Metadata.UserAgent, a.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: save %s/%s: %w", a.Name, kind, err)
	}
	return nil
}

// Load reads the artifact stored under (name, kind), or ErrNotFound.
func (s *Store) Load(ctx context.Context, name string, kind Kind) (*artifact.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, hash, layer_count, commands, image_ref,
		       url, viewport_w, viewport_h, user_agent, created_at
		FROM artifacts WHERE name = ? AND kind = ?`, name, string(kind))

	var (
		a        artifact.Artifact
		mode     string
		commands sql.NullString
		created  string
	)
	a.Name = name
	err := row.Scan(&a.ID, &mode, &a.Hash, &a.LayerCount, &commands, &a.ImageRef,
		&a.Metadata.URL, &a.Metadata.Viewport.Width, &a.Metadata.Viewport.Height,
		&a.Metadata.UserAgent, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, name, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s/%s: %w", name, kind, err)
	}

	a.Mode = artifact.Mode(mode)
	if commands.Valid && commands.String != "" {
		if err := json.Unmarshal([]byte(commands.String), &a.Commands); err != nil {
			return nil, fmt.Errorf("store: decode commands for %s: %w", name, err)
		}
	}
	if a.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("store: parse timestamp for %s: %w", name, err)
	}
	return &a, nil
}

// Promote copies the actual artifact over the baseline, accepting the
// latest capture as the new reference.
func (s *Store) Promote(ctx context.Context, name string) error {
	a, err := s.Load(ctx, name, KindActual)
	if err != nil {
		return err
	}
	if a.Mode == artifact.ModePixel {
		data, err := os.ReadFile(s.ImagePath(name, KindActual))
		if err != nil {
			return fmt.Errorf("store: promote %s: %w", name, err)
		}
		if err := os.WriteFile(s.ImagePath(name, KindBaseline), data, 0o644); err != nil {
			return fmt.Errorf("store: promote %s: %w", name, err)
		}
		a.ImageRef = s.ImagePath(name, KindBaseline)
	}
	return s.Save(ctx, KindBaseline, a)
}

// ImagePath is the name-keyed path for a capture's raster bytes.
func (s *Store) ImagePath(name string, kind Kind) string {
	return filepath.Join(s.imageDir, fmt.Sprintf("%s.%s.png", safeName(name), kind))
}

// DiffPath is the name-keyed path for the highlighted diff image.
func (s *Store) DiffPath(name string) string {
	return filepath.Join(s.imageDir, safeName(name)+".diff.png")
}

// WriteImage persists raster bytes at path.
func (s *Store) WriteImage(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("store: write image: %w", err)
	}
	return nil
}

// ReadImage loads raster bytes from path, mapping absence to ErrNotFound.
func (s *Store) ReadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read image: %w", err)
	}
	return data, nil
}

// RemoveDiff deletes a stale diff image. Best effort: cleanup failure is
// not worth failing a matching comparison over.
func (s *Store) RemoveDiff(name string) {
	_ = os.Remove(s.DiffPath(name))
}

func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

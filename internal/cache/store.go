// Package cache holds the current GeoJSON document in memory and mirrors it to a single file.
//
// The file is only ever replaced whole: a commit writes a sibling temporary
// file and renames it over the target, so readers of the file never observe a
// partial document. In memory, a commit swaps the document and both
// timestamps together after the rename succeeded.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dreampalaces/placesync/internal/geo"
)

var (
	// ErrInvalidCache is returned when the cache file is not a valid FeatureCollection
	ErrInvalidCache = errors.New("invalid cache file")

	// ErrLocked is returned when another process holds the cache write lock
	ErrLocked = errors.New("cache file is locked by another writer")
)

// Snapshot is an immutable view of the cache state
type Snapshot struct {
	Document *geo.Document
	// Data is the encoded Document exactly as stored on disk
	Data []byte
	Hash string
	// LastModified is the modification time of the backing file
	LastModified time.Time
	// LastRefreshAt is when the last successful refresh of this process started; zero if none
	LastRefreshAt time.Time
}

// HasDocument reports whether the snapshot holds a document
func (s Snapshot) HasDocument() bool {
	return s.Document != nil
}

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// Store owns the cached document
type Store interface {
	// Load reads the backing file into memory. A missing file yields (nil, nil).
	Load(ctx context.Context) (*geo.Document, error)

	// Commit durably replaces the backing file with doc, then swaps the in-memory state
	Commit(ctx context.Context, doc *geo.Document, refreshedAt time.Time) error

	// Snapshot returns the current state
	Snapshot() Snapshot

	// Path returns the backing file location
	Path() string
}

// FileStore is a Store backed by one JSON file
type FileStore struct {
	path   string
	schema *jsonschema.Schema

	mu    sync.RWMutex
	state Snapshot
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store for the file at path. Nothing is read until Load.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	sch, err := compileSchema()
	if err != nil {
		return nil, err
	}
	return &FileStore{path: filepath.Clean(path), schema: sch}, nil
}

// Path implements Store
func (s *FileStore) Path() string {
	return s.path
}

// Snapshot implements Store
func (s *FileStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Load implements Store
func (s *FileStore) Load(ctx context.Context) (*geo.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.DebugContext(ctx, "No cache file found", "path", s.path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	doc, err := s.decode(data)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat cache file: %w", err)
	}

	s.mu.Lock()
	s.state = Snapshot{
		Document:     doc,
		Data:         data,
		Hash:         geo.Hash(data),
		LastModified: info.ModTime(),
	}
	s.mu.Unlock()

	slog.InfoContext(ctx, "Loaded cache from disk",
		"path", s.path,
		"features", doc.Len(),
		"last_modified", info.ModTime().UTC().Format(time.RFC3339))
	return doc, nil
}

func (s *FileStore) decode(data []byte) (*geo.Document, error) {
	if err := validateWith(s.schema, data); err != nil {
		return nil, err
	}
	doc, err := geo.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCache, err)
	}
	return doc, nil
}

// Commit implements Store
func (s *FileStore) Commit(ctx context.Context, doc *geo.Document, refreshedAt time.Time) error {
	if doc == nil {
		return fmt.Errorf("cannot commit a nil document")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := geo.Marshal(doc)
	if err != nil {
		return err
	}

	modTime, err := WriteFile(s.path, data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state = Snapshot{
		Document:      doc,
		Data:          data,
		Hash:          geo.Hash(data),
		LastModified:  modTime,
		LastRefreshAt: refreshedAt,
	}
	s.mu.Unlock()

	slog.DebugContext(ctx, "Cache committed",
		"path", s.path,
		"features", doc.Len(),
		"bytes", len(data))
	return nil
}

// WriteFile replaces the file at path with data under the cache write lock and
// returns its new modification time
func WriteFile(path string, data []byte) (time.Time, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return time.Time{}, fmt.Errorf("failed to create cache directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to acquire cache lock: %w", err)
	}
	if !locked {
		return time.Time{}, ErrLocked
	}
	defer func() {
		_ = lock.Unlock()
	}()

	tmpPath := path + ".tmp"
	if err := writeSynced(tmpPath, data); err != nil {
		_ = os.Remove(tmpPath)
		return time.Time{}, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return time.Time{}, fmt.Errorf("failed to replace cache file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat cache file: %w", err)
	}
	return info.ModTime(), nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary cache file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write temporary cache file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync temporary cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temporary cache file: %w", err)
	}
	return nil
}

// ReadFile validates and parses a cache file without touching any store state
func ReadFile(path string) (*geo.Document, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if err := ValidateDocument(data); err != nil {
		return nil, nil, err
	}
	doc, err := geo.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidCache, err)
	}
	return doc, data, nil
}

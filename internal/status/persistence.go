// Package status provides sync status tracking and persistence.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dreampalaces/placesync/internal/cache"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

// StatusPersistence defines the interface for sync status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the sync status to persistent storage
	SaveStatus(ctx context.Context, status *SyncStatus) error

	// LoadStatus loads the sync status from persistent storage.
	// Returns an idle SyncStatus if nothing was saved yet (first run).
	LoadStatus(ctx context.Context) (*SyncStatus, error)
}

// fileStatusPersistence keeps the status as one indented JSON file next to the cache
type fileStatusPersistence struct {
	path string
}

// NewFileStatusPersistence creates a file-based status persistence writing to path
func NewFileStatusPersistence(path string) StatusPersistence {
	return &fileStatusPersistence{path: path}
}

// SaveStatus replaces the file whole, using the same locked rename as the cache file
func (f *fileStatusPersistence) SaveStatus(_ context.Context, status *SyncStatus) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data: %w", err)
	}
	if _, err := cache.WriteFile(f.path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// LoadStatus reads the status file. A missing file is a first run.
func (f *fileStatusPersistence) LoadStatus(_ context.Context) (*SyncStatus, error) {
	status := &SyncStatus{Phase: SyncPhaseIdle}

	// #nosec G304 -- path comes from configuration
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return status, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	if err := json.Unmarshal(data, status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data: %w", err)
	}
	if status.Phase == "" {
		status.Phase = SyncPhaseIdle
	}
	return status, nil
}

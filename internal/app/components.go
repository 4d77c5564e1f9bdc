package app

import (
	"github.com/dreampalaces/placesync/internal/cache"
	"github.com/dreampalaces/placesync/internal/status"
	"github.com/dreampalaces/placesync/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncCoordinator serializes bootstraps and refreshes
	SyncCoordinator coordinator.Coordinator

	// Store owns the cached GeoJSON document
	Store cache.Store

	// StatusPersistence records the outcome of each sync attempt
	StatusPersistence status.StatusPersistence
}

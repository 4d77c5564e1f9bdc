package coordinator

import (
	"time"

	"github.com/dreampalaces/placesync/internal/status"
	pkgsync "github.com/dreampalaces/placesync/internal/sync"
)

// RefreshStatus is the result kind of a manual refresh
type RefreshStatus string

const (
	// StatusRefreshed means the cache was rebuilt
	StatusRefreshed RefreshStatus = "refreshed"
	// StatusThrottled means the minimum interval has not elapsed; nothing was fetched
	StatusThrottled RefreshStatus = "throttled"
	// StatusUnauthorized means the caller was rejected before any work
	StatusUnauthorized RefreshStatus = "unauthorized"
	// StatusFailed means the pipeline failed and the cache is unchanged
	StatusFailed RefreshStatus = "failed"
)

// RefreshResult describes the outcome of Refresh
type RefreshResult struct {
	Status RefreshStatus
	// RetryAfterSeconds is set for StatusThrottled, rounded down
	RetryAfterSeconds int
	FeatureCount      int
	RecordCount       int
	// Err is set for StatusFailed
	Err *pkgsync.Error
}

// OK reports whether the refresh was accepted (refreshed or throttled)
func (r *RefreshResult) OK() bool {
	return r.Status == StatusRefreshed || r.Status == StatusThrottled
}

// BootstrapError is returned when the first build of the cache fails
type BootstrapError struct {
	Err *pkgsync.Error
}

func (e *BootstrapError) Error() string {
	return "bootstrap failed: " + e.Err.Message
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// HealthSnapshot reports cache freshness without touching upstream
type HealthSnapshot struct {
	HasCache bool
	// LastModified is the cache file write time; zero without a cache
	LastModified time.Time
	// LastRefreshAt is when the last successful refresh started; zero if none in this process
	LastRefreshAt time.Time
	FeatureCount  int
	Hash          string
	Sync          *status.SyncStatus
}

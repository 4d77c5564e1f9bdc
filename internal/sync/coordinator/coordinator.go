package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/dreampalaces/placesync/internal/cache"
	"github.com/dreampalaces/placesync/internal/config"
	"github.com/dreampalaces/placesync/internal/otel"
	"github.com/dreampalaces/placesync/internal/status"
	pkgsync "github.com/dreampalaces/placesync/internal/sync"
	"github.com/dreampalaces/placesync/internal/telemetry"
	"github.com/dreampalaces/placesync/internal/versions"
)

// Sync triggers, used in logs, spans, metrics and the persisted status
const (
	TriggerBootstrap = "bootstrap"
	TriggerRefresh   = "refresh"
)

// Coordinator serializes bootstrap and refresh runs over the cache
//
//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks github.com/dreampalaces/placesync/internal/sync/coordinator Coordinator
type Coordinator interface {
	// Start loads the cache file and the persisted sync status.
	// Missing or unreadable files are logged, never fatal.
	Start(ctx context.Context) error

	// GetCurrentOrBootstrap returns the cached document, building it first when
	// there is none. A failed build returns a *BootstrapError.
	GetCurrentOrBootstrap(ctx context.Context) (cache.Snapshot, error)

	// Refresh rebuilds the cache unless the caller is unauthorized or the
	// minimum refresh interval has not elapsed
	Refresh(ctx context.Context, authorized bool) *RefreshResult

	// Health reports cache freshness and the sync status
	Health(ctx context.Context) *HealthSnapshot
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager     pkgsync.Manager
	store       cache.Store
	minInterval time.Duration

	// mu is the exclusive region around store access and pipeline runs
	mu    gosync.Mutex
	group singleflight.Group

	statusMu    gosync.Mutex
	syncStatus  *status.SyncStatus
	persistence status.StatusPersistence

	clock       clock.Clock
	tracer      trace.Tracer
	syncMetrics *telemetry.SyncMetrics
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithClock sets the clock used for refresh times and throttling
func WithClock(c clock.Clock) Option {
	return func(dc *defaultCoordinator) {
		dc.clock = c
	}
}

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(dc *defaultCoordinator) {
		dc.syncMetrics = metrics
	}
}

// WithTracer sets the tracer for pipeline spans
func WithTracer(tracer trace.Tracer) Option {
	return func(dc *defaultCoordinator) {
		dc.tracer = tracer
	}
}

// WithStatusPersistence stores the sync status after every phase change
func WithStatusPersistence(p status.StatusPersistence) Option {
	return func(dc *defaultCoordinator) {
		dc.persistence = p
	}
}

// New creates a new coordinator with injected dependencies
func New(
	manager pkgsync.Manager,
	store cache.Store,
	cfg *config.Config,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		manager:     manager,
		store:       store,
		minInterval: cfg.Refresh.MinInterval.Std(),
		syncStatus:  &status.SyncStatus{Phase: status.SyncPhaseIdle},
		clock:       clock.RealClock{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start loads the cache and the last sync status
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	doc, err := c.store.Load(ctx)
	c.mu.Unlock()

	switch {
	case err != nil:
		slog.WarnContext(ctx, "Ignoring unreadable cache file; the next read will bootstrap",
			"path", c.store.Path(), "error", err)
	case doc == nil:
		slog.InfoContext(ctx, "No cache file yet", "path", c.store.Path())
	default:
		slog.InfoContext(ctx, "Loaded cache file", "path", c.store.Path(), "feature_count", doc.Len())
		c.syncMetrics.RecordFeatureCount(ctx, int64(doc.Len()))
	}

	if c.persistence == nil {
		return nil
	}

	loaded, err := c.persistence.LoadStatus(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Ignoring unreadable sync status", "error", err)
		return nil
	}

	if versions.IsNewer(loaded.WriterVersion, versions.Version) {
		slog.WarnContext(ctx, "Sync status was written by a newer placesync",
			"status_version", loaded.WriterVersion, "version", versions.Version)
	}

	if loaded.InProgress() {
		slog.WarnContext(ctx, "Previous sync attempt did not finish",
			"phase", loaded.Phase, "attempt_id", loaded.LastAttemptID)
		loaded.Message = fmt.Sprintf("Sync attempt interrupted during %s", loaded.Phase)
		loaded.Phase = status.SyncPhaseIdle
		loaded.Outcome = status.OutcomeFailed
	}

	c.statusMu.Lock()
	c.syncStatus = loaded
	c.statusMu.Unlock()
	c.saveStatus(ctx)

	return nil
}

// GetCurrentOrBootstrap returns the cached document, building it on first use
func (c *defaultCoordinator) GetCurrentOrBootstrap(ctx context.Context) (cache.Snapshot, error) {
	v, err, shared := c.group.Do(TriggerBootstrap, func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if snap := c.store.Snapshot(); snap.HasDocument() {
			return snap, nil
		}

		slog.InfoContext(ctx, "No cached document, bootstrapping from upstream")
		if _, syncErr := c.runSync(ctx, TriggerBootstrap); syncErr != nil {
			return cache.Snapshot{}, &BootstrapError{Err: syncErr}
		}
		return c.store.Snapshot(), nil
	})
	if shared {
		slog.DebugContext(ctx, "Joined in-flight bootstrap")
	}
	if err != nil {
		return cache.Snapshot{}, err
	}
	return v.(cache.Snapshot), nil
}

// Refresh rebuilds the cache when authorized and not throttled
func (c *defaultCoordinator) Refresh(ctx context.Context, authorized bool) *RefreshResult {
	if !authorized {
		c.syncMetrics.RecordRefreshRequest(ctx, string(StatusUnauthorized))
		return &RefreshResult{Status: StatusUnauthorized}
	}

	v, _, shared := c.group.Do(TriggerRefresh, func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if retryAfter, throttled := c.throttle(); throttled {
			slog.InfoContext(ctx, "Refresh throttled", "retry_after_seconds", retryAfter)
			return &RefreshResult{Status: StatusThrottled, RetryAfterSeconds: retryAfter}, nil
		}

		result, syncErr := c.runSync(ctx, TriggerRefresh)
		if syncErr != nil {
			return &RefreshResult{Status: StatusFailed, Err: syncErr}, nil
		}
		return &RefreshResult{
			Status:       StatusRefreshed,
			FeatureCount: result.FeatureCount,
			RecordCount:  result.RecordCount,
		}, nil
	})

	// joined callers get their own copy
	res := *v.(*RefreshResult)
	if shared {
		slog.DebugContext(ctx, "Joined in-flight refresh", "status", res.Status)
	}
	c.syncMetrics.RecordRefreshRequest(ctx, string(res.Status))
	return &res
}

// Health reports cache freshness and the sync status.
// It does not wait for a running refresh; the store hands out consistent snapshots on its own.
func (c *defaultCoordinator) Health(_ context.Context) *HealthSnapshot {
	snap := c.store.Snapshot()

	c.statusMu.Lock()
	syncStatus := c.syncStatus.Clone()
	c.statusMu.Unlock()

	return &HealthSnapshot{
		HasCache:      snap.HasDocument(),
		LastModified:  snap.LastModified,
		LastRefreshAt: snap.LastRefreshAt,
		FeatureCount:  snap.Document.Len(),
		Hash:          snap.Hash,
		Sync:          syncStatus,
	}
}

// throttle returns the whole seconds to wait when the last refresh is too recent.
// Callers must hold c.mu.
func (c *defaultCoordinator) throttle() (int, bool) {
	last := c.store.Snapshot().LastRefreshAt
	if last.IsZero() {
		return 0, false
	}

	elapsed := c.clock.Since(last)
	if elapsed >= c.minInterval {
		return 0, false
	}

	remaining := c.minInterval - elapsed
	// a clock that moved backwards must not produce a wait longer than the interval
	remaining = min(remaining, c.minInterval)
	return int(remaining / time.Second), true
}

// runSync executes one pipeline run and records its status. Callers must hold c.mu.
func (c *defaultCoordinator) runSync(ctx context.Context, trigger string) (*pkgsync.Result, *pkgsync.Error) {
	attemptID := uuid.NewString()
	ctx, span := otel.StartSpan(ctx, c.tracer, "coordinator.sync",
		trace.WithAttributes(
			otel.AttrAttemptID.String(attemptID),
			otel.AttrSyncTrigger.String(trigger),
		),
	)
	defer span.End()

	startTime := c.clock.Now()
	c.beginAttempt(ctx, trigger, attemptID, startTime)

	slog.InfoContext(ctx, "Starting sync operation", "trigger", trigger, "attempt_id", attemptID)

	result, syncErr := c.manager.PerformSync(ctx, startTime, func(phase status.SyncPhase) {
		span.AddEvent("phase", trace.WithAttributes(attribute.String("phase", string(phase))))
		c.setPhase(ctx, phase)
	})

	syncDuration := c.clock.Since(startTime)

	if syncErr != nil {
		span.SetAttributes(otel.AttrSyncStage.String(string(syncErr.Stage)))
		otel.RecordError(span, syncErr)
		slog.ErrorContext(ctx, "Sync failed",
			"trigger", trigger,
			"attempt_id", attemptID,
			"stage", syncErr.Stage,
			"reason", syncErr.Reason,
			"error", syncErr.Message)
		c.failAttempt(ctx, syncErr)
		c.syncMetrics.RecordSyncDuration(ctx, trigger, syncDuration, false)
		return nil, syncErr
	}

	span.SetAttributes(otel.AttrFeatureCount.Int(result.FeatureCount))
	slog.InfoContext(ctx, "Sync completed successfully",
		"trigger", trigger,
		"attempt_id", attemptID,
		"feature_count", result.FeatureCount,
		"record_count", result.RecordCount,
		"changed", result.Changed,
		"duration", syncDuration)
	c.completeAttempt(ctx, result)
	c.syncMetrics.RecordSyncDuration(ctx, trigger, syncDuration, true)
	c.syncMetrics.RecordFeatureCount(ctx, int64(result.FeatureCount))

	return result, nil
}

func (c *defaultCoordinator) beginAttempt(ctx context.Context, trigger, attemptID string, at time.Time) {
	c.statusMu.Lock()
	c.syncStatus.Phase = status.SyncPhaseFetching
	c.syncStatus.Message = "Sync in progress"
	c.syncStatus.Trigger = trigger
	c.syncStatus.LastAttempt = &at
	c.syncStatus.LastAttemptID = attemptID
	c.syncStatus.AttemptCount++
	c.statusMu.Unlock()
	c.saveStatus(ctx)
}

func (c *defaultCoordinator) setPhase(ctx context.Context, phase status.SyncPhase) {
	c.statusMu.Lock()
	c.syncStatus.Phase = phase
	c.statusMu.Unlock()
	c.saveStatus(ctx)
}

func (c *defaultCoordinator) failAttempt(ctx context.Context, syncErr *pkgsync.Error) {
	c.statusMu.Lock()
	c.syncStatus.Phase = status.SyncPhaseIdle
	c.syncStatus.Outcome = status.OutcomeFailed
	c.syncStatus.Message = syncErr.Message
	c.statusMu.Unlock()
	c.saveStatus(ctx)
}

func (c *defaultCoordinator) completeAttempt(ctx context.Context, result *pkgsync.Result) {
	now := c.clock.Now()
	c.statusMu.Lock()
	c.syncStatus.Phase = status.SyncPhaseIdle
	c.syncStatus.Outcome = status.OutcomeSucceeded
	c.syncStatus.Message = "Sync completed successfully"
	c.syncStatus.LastSyncTime = &now
	c.syncStatus.LastSyncHash = result.Hash
	c.syncStatus.RecordCount = result.RecordCount
	c.syncStatus.FeatureCount = result.FeatureCount
	c.syncStatus.DroppedCount = result.Dropped
	c.syncStatus.AttemptCount = 0
	c.statusMu.Unlock()
	c.saveStatus(ctx)
}

// saveStatus persists a copy of the current status; failures are logged only
func (c *defaultCoordinator) saveStatus(ctx context.Context) {
	if c.persistence == nil {
		return
	}

	c.statusMu.Lock()
	snapshot := c.syncStatus.Clone()
	c.statusMu.Unlock()
	snapshot.WriterVersion = versions.Version

	if err := c.persistence.SaveStatus(ctx, snapshot); err != nil {
		slog.ErrorContext(ctx, "Error updating sync status", "error", err)
	}
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dreampalaces/placesync/internal/cache"
	"github.com/dreampalaces/placesync/internal/sources"
	"github.com/dreampalaces/placesync/internal/status"
	"github.com/dreampalaces/placesync/internal/transform"
)

// Stage names the pipeline step an error came from
type Stage string

const (
	// StageFetch is the upstream download
	StageFetch Stage = "fetch"
	// StageTransform is the record to feature conversion
	StageTransform Stage = "transform"
	// StageCommit is the cache replacement
	StageCommit Stage = "commit"
)

// Failure reasons
const (
	ReasonFetchFailed     = "FetchFailed"
	ReasonUpstreamStatus  = "UpstreamStatus"
	ReasonTransformFailed = "TransformFailed"
	ReasonStorageFailed   = "StorageFailed"
	ReasonStorageLocked   = "StorageLocked"
	ReasonCanceled        = "Canceled"
)

// Result contains the result of a successful sync operation
type Result struct {
	Hash         string
	RecordCount  int
	FeatureCount int
	Dropped      int
	OutOfRange   int
	// Changed is false when the new document is byte-identical to the previous one
	Changed bool
}

// Error represents a failed sync with the stage it failed in
type Error struct {
	Err     error
	Message string
	Stage   Stage
	Reason  string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PhaseFunc is called when the pipeline enters a new phase
type PhaseFunc func(phase status.SyncPhase)

// Manager runs the fetch, transform and commit pipeline
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/dreampalaces/placesync/internal/sync Manager
type Manager interface {
	// PerformSync executes one complete refresh. refreshedAt is recorded as the
	// refresh time of the committed document. onPhase may be nil.
	PerformSync(ctx context.Context, refreshedAt time.Time, onPhase PhaseFunc) (*Result, *Error)
}

// defaultSyncManager is the default implementation of Manager
type defaultSyncManager struct {
	fetcher     sources.Fetcher
	transformer transform.Transformer
	store       cache.Store
}

// NewDefaultSyncManager creates a new defaultSyncManager
func NewDefaultSyncManager(
	fetcher sources.Fetcher, transformer transform.Transformer, store cache.Store,
) Manager {
	return &defaultSyncManager{
		fetcher:     fetcher,
		transformer: transformer,
		store:       store,
	}
}

// PerformSync performs the complete sync operation.
// Returns sync result on success, or error on failure
func (s *defaultSyncManager) PerformSync(
	ctx context.Context, refreshedAt time.Time, onPhase PhaseFunc,
) (*Result, *Error) {
	if onPhase == nil {
		onPhase = func(status.SyncPhase) {}
	}

	onPhase(status.SyncPhaseFetching)
	records, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Fetch operation failed", "error", err)
		return nil, fetchError(err)
	}
	slog.InfoContext(ctx, "Records fetched from upstream", "record_count", len(records))

	onPhase(status.SyncPhaseTransforming)
	transformed, err := s.transformer.Transform(ctx, records)
	if err != nil {
		slog.ErrorContext(ctx, "Transform failed", "error", err)
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("transform failed: %v", err),
			Stage:   StageTransform,
			Reason:  ReasonTransformFailed,
		}
	}

	previousHash := s.store.Snapshot().Hash

	onPhase(status.SyncPhaseCommitting)
	if err := s.store.Commit(ctx, transformed.Document, refreshedAt); err != nil {
		slog.ErrorContext(ctx, "Failed to store document", "error", err, "path", s.store.Path())
		reason := ReasonStorageFailed
		if errors.Is(err, cache.ErrLocked) {
			reason = ReasonStorageLocked
		}
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("commit failed: %v", err),
			Stage:   StageCommit,
			Reason:  reason,
		}
	}

	result := &Result{
		Hash:         transformed.Hash,
		RecordCount:  len(records),
		FeatureCount: transformed.Document.Len(),
		Dropped:      transformed.Dropped,
		OutOfRange:   transformed.OutOfRange,
		Changed:      transformed.Hash != previousHash,
	}

	if !result.Changed {
		slog.InfoContext(ctx, "Upstream data unchanged since last refresh", "hash", shortHash(result.Hash))
	}
	slog.InfoContext(ctx, "Document stored successfully",
		"feature_count", result.FeatureCount,
		"dropped", result.Dropped,
		"path", s.store.Path())

	return result, nil
}

func fetchError(err error) *Error {
	syncErr := &Error{
		Err:     err,
		Message: fmt.Sprintf("fetch failed: %v", err),
		Stage:   StageFetch,
		Reason:  ReasonFetchFailed,
	}

	var upstreamErr *sources.UpstreamError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		syncErr.Reason = ReasonCanceled
	case errors.As(err, &upstreamErr) && upstreamErr.StatusCode != 0:
		syncErr.Reason = ReasonUpstreamStatus
	}
	return syncErr
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

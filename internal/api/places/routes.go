// Package places serves the cached GeoJSON document and its refresh and health endpoints.
package places

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dreampalaces/placesync/internal/api/common"
	"github.com/dreampalaces/placesync/internal/auth"
	"github.com/dreampalaces/placesync/internal/status"
	"github.com/dreampalaces/placesync/internal/sync/coordinator"
)

// ContentTypeGeoJSON is the media type of the document route
const ContentTypeGeoJSON = "application/geo+json"

// DefaultRefreshTimeout bounds a bootstrap or refresh started by a request
const DefaultRefreshTimeout = 2 * time.Minute

// RefreshResponse is the body of POST /refresh
type RefreshResponse struct {
	OK                bool   `json:"ok"`
	Throttled         bool   `json:"throttled"`
	RetryAfterSeconds *int   `json:"retry_after_seconds,omitempty"`
	FeatureCount      *int   `json:"feature_count,omitempty"`
	Records           *int   `json:"records,omitempty"`
	Error             string `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	OK            bool       `json:"ok"`
	HasCache      bool       `json:"has_cache"`
	Cached        bool       `json:"cached"`
	LastModified  *time.Time `json:"last_modified"`
	UpdatedAt     *time.Time `json:"updated_at"`
	LastRefreshAt *time.Time `json:"last_refresh_at"`
	FeatureCount  int        `json:"feature_count"`
	Sync          *SyncInfo  `json:"sync,omitempty"`
}

// SyncInfo summarizes the persisted sync status
type SyncInfo struct {
	Phase         string     `json:"phase"`
	Outcome       string     `json:"outcome,omitempty"`
	Message       string     `json:"message,omitempty"`
	Trigger       string     `json:"trigger,omitempty"`
	LastAttempt   *time.Time `json:"last_attempt,omitempty"`
	LastAttemptID string     `json:"last_attempt_id,omitempty"`
	AttemptCount  int        `json:"attempt_count"`
	LastSyncTime  *time.Time `json:"last_sync_time,omitempty"`
	LastSyncHash  string     `json:"last_sync_hash,omitempty"`
	RecordCount   int        `json:"record_count"`
	FeatureCount  int        `json:"feature_count"`
	DroppedCount  int        `json:"dropped_count"`
}

// Routes defines the place routes with dependency injection
type Routes struct {
	coord          coordinator.Coordinator
	authorizer     *auth.TokenAuthorizer
	refreshTimeout time.Duration
	now            func() time.Time
}

// NewRoutes creates a new Routes instance
func NewRoutes(coord coordinator.Coordinator, authorizer *auth.TokenAuthorizer, refreshTimeout time.Duration) *Routes {
	if refreshTimeout <= 0 {
		refreshTimeout = DefaultRefreshTimeout
	}
	if authorizer == nil {
		authorizer = auth.NewTokenAuthorizer("")
	}
	return &Routes{
		coord:          coord,
		authorizer:     authorizer,
		refreshTimeout: refreshTimeout,
		now:            time.Now,
	}
}

// Router creates the router for the place API
func Router(coord coordinator.Coordinator, authorizer *auth.TokenAuthorizer, refreshTimeout time.Duration) http.Handler {
	routes := NewRoutes(coord, authorizer, refreshTimeout)

	r := chi.NewRouter()
	r.Get("/places.geojson", routes.getPlaces)
	r.Post("/refresh", routes.refresh)
	r.Get("/health", routes.health)

	return r
}

// detached returns a context that survives the client going away, so a run
// shared by several callers is not aborted by one of them
func (rr *Routes) detached(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), rr.refreshTimeout)
}

// getPlaces handles GET /api/places.geojson
func (rr *Routes) getPlaces(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rr.detached(r)
	defer cancel()

	snap, err := rr.coord.GetCurrentOrBootstrap(ctx)
	if err != nil {
		message := err.Error()
		var bootstrapErr *coordinator.BootstrapError
		if !errors.As(err, &bootstrapErr) {
			message = "bootstrap failed: " + message
		}
		common.WriteErrorResponse(w, message, http.StatusServiceUnavailable)
		return
	}

	lastModified := snap.LastModified
	if lastModified.IsZero() {
		lastModified = rr.now()
	}
	lastModified = lastModified.UTC().Truncate(time.Second)
	etag := `"` + snap.Hash + `"`

	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
	if snap.Hash != "" {
		w.Header().Set("ETag", etag)
	}

	if notModified(r, etag, lastModified) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", ContentTypeGeoJSON)
	w.Header().Set("Content-Length", strconv.Itoa(len(snap.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(snap.Data); err != nil {
		slog.DebugContext(r.Context(), "Client went away while writing document", "error", err)
	}
}

// notModified evaluates If-None-Match, falling back to If-Modified-Since
func notModified(r *http.Request, etag string, lastModified time.Time) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		for _, candidate := range strings.Split(inm, ",") {
			candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
			if candidate == "*" || candidate == etag {
				return true
			}
		}
		return false
	}

	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		since, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		return !lastModified.After(since)
	}
	return false
}

// refresh handles POST /api/refresh
func (rr *Routes) refresh(w http.ResponseWriter, r *http.Request) {
	authorized := rr.authorizer.Authorized(r)

	ctx, cancel := rr.detached(r)
	defer cancel()

	result := rr.coord.Refresh(ctx, authorized)

	switch result.Status {
	case coordinator.StatusUnauthorized:
		rr.authorizer.WriteUnauthorized(w)
	case coordinator.StatusThrottled:
		retryAfter := result.RetryAfterSeconds
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		common.WriteJSONResponse(w, RefreshResponse{
			OK:                true,
			Throttled:         true,
			RetryAfterSeconds: &retryAfter,
		}, http.StatusOK)
	case coordinator.StatusRefreshed:
		count := result.FeatureCount
		common.WriteJSONResponse(w, RefreshResponse{
			OK:           true,
			FeatureCount: &count,
			Records:      &count,
		}, http.StatusOK)
	default:
		message := "refresh failed"
		if result.Err != nil {
			message = result.Err.Message
		}
		common.WriteJSONResponse(w, RefreshResponse{OK: false, Error: message}, http.StatusInternalServerError)
	}
}

// health handles GET /api/health
func (rr *Routes) health(w http.ResponseWriter, r *http.Request) {
	snap := rr.coord.Health(r.Context())

	resp := HealthResponse{
		OK:            true,
		HasCache:      snap.HasCache,
		Cached:        snap.HasCache,
		LastModified:  common.OptionalTime(snap.LastModified),
		UpdatedAt:     common.OptionalTime(snap.LastModified),
		LastRefreshAt: common.OptionalTime(snap.LastRefreshAt),
		FeatureCount:  snap.FeatureCount,
		Sync:          syncInfo(snap.Sync),
	}

	common.WriteJSONResponse(w, resp, http.StatusOK)
}

func syncInfo(s *status.SyncStatus) *SyncInfo {
	if s == nil {
		return nil
	}
	info := &SyncInfo{
		Phase:         string(s.Phase),
		Outcome:       string(s.Outcome),
		Message:       s.Message,
		Trigger:       s.Trigger,
		LastAttemptID: s.LastAttemptID,
		AttemptCount:  s.AttemptCount,
		LastSyncHash:  s.LastSyncHash,
		RecordCount:   s.RecordCount,
		FeatureCount:  s.FeatureCount,
		DroppedCount:  s.DroppedCount,
	}
	if s.LastAttempt != nil {
		info.LastAttempt = common.OptionalTime(*s.LastAttempt)
	}
	if s.LastSyncTime != nil {
		info.LastSyncTime = common.OptionalTime(*s.LastSyncTime)
	}
	return info
}

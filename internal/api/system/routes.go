// Package system provides liveness, readiness and build info routes.
package system

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dreampalaces/placesync/internal/api/common"
	"github.com/dreampalaces/placesync/internal/sync/coordinator"
	"github.com/dreampalaces/placesync/internal/versions"
)

// Routes defines the system routes with dependency injection
type Routes struct {
	coord coordinator.Coordinator
}

// NewRoutes creates a new Routes instance
func NewRoutes(coord coordinator.Coordinator) *Routes {
	return &Routes{coord: coord}
}

// Router creates the system router mounted at the server root
func Router(coord coordinator.Coordinator) http.Handler {
	routes := NewRoutes(coord)

	r := chi.NewRouter()
	r.Get("/health", routes.health)
	r.Get("/readiness", routes.readiness)
	r.Get("/version", routes.version)

	return r
}

// health handles GET /health
func (rr *Routes) health(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readiness handles GET /readiness. The service is ready once a document is cached.
func (rr *Routes) readiness(w http.ResponseWriter, r *http.Request) {
	if !rr.coord.Health(r.Context()).HasCache {
		common.WriteJSONResponse(w, map[string]string{"status": "not ready", "reason": "no cached document"},
			http.StatusServiceUnavailable)
		return
	}
	common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
}

// version handles GET /version
func (*Routes) version(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}

package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/dreampalaces/placesync/internal/api"
	"github.com/dreampalaces/placesync/internal/auth"
	"github.com/dreampalaces/placesync/internal/sync/coordinator"
	"github.com/dreampalaces/placesync/internal/sync/coordinator/mocks"
)

func TestNewServer_Routes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "liveness", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "readiness", method: http.MethodGet, path: "/readiness", wantStatus: http.StatusOK},
		{name: "version", method: http.MethodGet, path: "/version", wantStatus: http.StatusOK},
		{name: "place health", method: http.MethodGet, path: "/api/health", wantStatus: http.StatusOK},
		{name: "refresh requires token", method: http.MethodPost, path: "/api/refresh", wantStatus: http.StatusUnauthorized},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusTeapot},
		{name: "unknown route", method: http.MethodGet, path: "/api/unknown", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			coord := mocks.NewMockCoordinator(ctrl)
			coord.EXPECT().Health(gomock.Any()).Return(&coordinator.HealthSnapshot{HasCache: true}).AnyTimes()
			coord.EXPECT().Refresh(gomock.Any(), false).
				Return(&coordinator.RefreshResult{Status: coordinator.StatusUnauthorized}).AnyTimes()

			metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})

			server := api.NewServer(coord,
				api.WithAuthorizer(auth.NewTokenAuthorizer("s3cret")),
				api.WithRefreshTimeout(time.Second),
				api.WithMetricsHandler(metrics),
				api.WithMiddlewares(api.LoggingMiddleware),
			)

			rr := httptest.NewRecorder()
			server.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestNewServer_NoMetricsHandler(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	server := api.NewServer(mocks.NewMockCoordinator(ctrl))

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	t.Parallel()

	handler := api.LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/anything", nil))

	assert.Equal(t, http.StatusAccepted, rr.Code)
}

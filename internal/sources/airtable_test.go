package sources_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/dreampalaces/placesync/internal/config"
	"github.com/dreampalaces/placesync/internal/sources"
)

// newTestServer creates a test server with keep-alives disabled so parallel
// tests do not share idle connections.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func upstreamConfig(endpoint string) *config.UpstreamConfig {
	return &config.UpstreamConfig{
		Endpoint: endpoint,
		BaseID:   "appDream",
		Table:    "Movie Palaces",
		Token:    "patSecret",
		PageSize: 2,
	}
}

// pagedHandler serves pages keyed by the incoming offset token
type pagedHandler struct {
	mu       sync.Mutex
	pages    map[string]string
	requests []*http.Request
}

func (h *pagedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.requests = append(h.requests, r)
	body, ok := h.pages[r.URL.Query().Get("offset")]
	h.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = w.Write([]byte(body))
}

func TestAirtableFetcher_FetchAll_Pagination(t *testing.T) {
	t.Parallel()

	handler := &pagedHandler{pages: map[string]string{
		"": `{"records":[` +
			`{"id":"rec1","createdTime":"2024-03-01T10:00:00.000Z","fields":{"Name":"Roxy","Latitude":40.1,"Longitude":-73.9}},` +
			`{"id":"rec2","createdTime":"2024-03-01T10:00:00.000Z","fields":{"Name":"Regent"}}` +
			`],"offset":"itrA/rec2"}`,
		"itrA/rec2": `{"records":[{"id":"rec3","fields":{"Name":"Paramount","Latitude":"41.5"}}]}`,
	}}
	server := newTestServer(handler)
	defer server.Close()

	cfg := upstreamConfig(server.URL)
	cfg.View = "Public"
	fetcher, err := sources.NewAirtableFetcher(cfg)
	require.NoError(t, err)

	records, err := fetcher.FetchAll(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, "rec1", records[0].ID)
	assert.Equal(t, "rec2", records[1].ID)
	assert.Equal(t, "rec3", records[2].ID)
	assert.Equal(t, []string{"Name", "Latitude", "Longitude"}, records[0].Fields.Keys())
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), records[0].CreatedTime.UTC())
	assert.True(t, records[2].CreatedTime.IsZero())

	require.Len(t, handler.requests, 2)
	first := handler.requests[0]
	assert.Equal(t, "/v0/appDream/Movie%20Palaces", first.URL.EscapedPath())
	assert.Equal(t, "Bearer patSecret", first.Header.Get("Authorization"))
	assert.Equal(t, "2", first.URL.Query().Get("pageSize"))
	assert.Equal(t, "Public", first.URL.Query().Get("view"))
	assert.Empty(t, first.URL.Query().Get("offset"))
	assert.Equal(t, "itrA/rec2", handler.requests[1].URL.Query().Get("offset"))
}

func TestAirtableFetcher_FetchAll_EmptyTable(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer server.Close()

	fetcher, err := sources.NewAirtableFetcher(upstreamConfig(server.URL))
	require.NoError(t, err)

	records, err := fetcher.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAirtableFetcher_FetchAll_RateLimitRetriesSameRequest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var offsets []string
	var mu sync.Mutex
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		mu.Lock()
		offsets = append(offsets, r.URL.Query().Get("offset"))
		mu.Unlock()

		switch {
		case n == 1:
			_, _ = w.Write([]byte(`{"records":[{"id":"rec1","fields":{}}],"offset":"next"}`))
		case n <= 4:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"records":[{"id":"rec2","fields":{}}]}`))
		}
	}))
	defer server.Close()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fakeClock := clocktesting.NewFakeClock(start)
	var waits []time.Duration

	fetcher, err := sources.NewAirtableFetcher(upstreamConfig(server.URL),
		sources.WithClock(fakeClock),
		sources.WithRateLimitHook(func(_ context.Context, page int, wait time.Duration) {
			assert.Equal(t, 2, page)
			waits = append(waits, wait)
		}),
	)
	require.NoError(t, err)

	records, err := fetcher.FetchAll(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, []string{"", "next", "next", "next", "next"}, offsets)
	assert.Equal(t, []time.Duration{1200 * time.Millisecond, 1200 * time.Millisecond, 1200 * time.Millisecond}, waits)
	assert.Equal(t, start.Add(3600*time.Millisecond), fakeClock.Now())
}

func TestAirtableFetcher_FetchAll_BackOffStop(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	fetcher, err := sources.NewAirtableFetcher(upstreamConfig(server.URL),
		sources.WithClock(clocktesting.NewFakeClock(time.Now())),
		sources.WithBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} }),
	)
	require.NoError(t, err)

	_, err = fetcher.FetchAll(context.Background())
	require.Error(t, err)

	var upstreamErr *sources.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusTooManyRequests, upstreamErr.StatusCode)
	assert.Contains(t, err.Error(), "rate limit retries exhausted")
}

func TestAirtableFetcher_FetchAll_ContextCancelledWhileRateLimited(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher, err := sources.NewAirtableFetcher(upstreamConfig(server.URL),
		sources.WithClock(clocktesting.NewFakeClock(time.Now())),
		sources.WithRateLimitHook(func(context.Context, int, time.Duration) {
			cancel()
		}),
	)
	require.NoError(t, err)

	_, err = fetcher.FetchAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAirtableFetcher_FetchAll_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantPage   int
		wantStatus int
	}{
		{
			name: "server error on first page",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantPage:   1,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantPage:   1,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "failure on second page discards first page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("offset") == "" {
					_, _ = w.Write([]byte(`{"records":[{"id":"rec1","fields":{}}],"offset":"p2"}`))
					return
				}
				w.WriteHeader(http.StatusBadGateway)
			},
			wantPage:   2,
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "malformed JSON",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"records":[`))
			},
			wantPage: 1,
		},
		{
			name: "records is not an array",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"records":{"id":"rec1"}}`))
			},
			wantPage: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(tt.handler)
			defer server.Close()

			fetcher, err := sources.NewAirtableFetcher(upstreamConfig(server.URL))
			require.NoError(t, err)

			records, err := fetcher.FetchAll(context.Background())
			require.Error(t, err)
			assert.Nil(t, records)

			var upstreamErr *sources.UpstreamError
			require.True(t, errors.As(err, &upstreamErr))
			assert.Equal(t, tt.wantPage, upstreamErr.Page)
			assert.Equal(t, tt.wantStatus, upstreamErr.StatusCode)
			assert.NotContains(t, err.Error(), "patSecret")
			assert.Contains(t, err.Error(), fmt.Sprintf("upstream page %d", tt.wantPage))
		})
	}
}

func TestNewAirtableFetcher_Validation(t *testing.T) {
	t.Parallel()

	_, err := sources.NewAirtableFetcher(nil)
	assert.Error(t, err)

	_, err = sources.NewAirtableFetcher(&config.UpstreamConfig{BaseID: "app"})
	assert.Error(t, err)
}

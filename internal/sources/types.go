package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/dreampalaces/placesync/internal/fields"
)

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=types.go Fetcher

// Fetcher retrieves every record of the configured upstream table
type Fetcher interface {
	// FetchAll walks all pages and returns the records in page order, then in-page order
	FetchAll(ctx context.Context) ([]Record, error)
}

// Record is one upstream row
type Record struct {
	ID          string
	CreatedTime time.Time
	Fields      *fields.Map
}

// UpstreamError describes a failed page request
type UpstreamError struct {
	// Page is the 1-based number of the page being requested
	Page int
	// URL is the request URL; credentials travel in headers and never appear here
	URL string
	// StatusCode is the HTTP status, or 0 for transport and decoding failures
	StatusCode int
	Err        error
}

// Error implements error
func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream page %d (%s) failed with HTTP %d: %v", e.Page, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream page %d (%s) failed: %v", e.Page, e.URL, e.Err)
}

// Unwrap returns the underlying error
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

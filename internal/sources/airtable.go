package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/dreampalaces/placesync/internal/config"
	"github.com/dreampalaces/placesync/internal/fields"
	"github.com/dreampalaces/placesync/internal/httpclient"
	"github.com/dreampalaces/placesync/internal/otel"
	"github.com/dreampalaces/placesync/internal/versions"
)

// RateLimitFunc is called every time the upstream answers HTTP 429, before waiting
type RateLimitFunc func(ctx context.Context, page int, wait time.Duration)

// AirtableFetcher fetches records from the Airtable REST API
type AirtableFetcher struct {
	httpClient  httpclient.Client
	clock       clock.Clock
	newBackOff  func() backoff.BackOff
	onRateLimit RateLimitFunc
	tracer      trace.Tracer

	baseURL  string
	baseID   string
	table    string
	token    string
	view     string
	pageSize int
}

// Option configures an AirtableFetcher
type Option func(*AirtableFetcher)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c httpclient.Client) Option {
	return func(f *AirtableFetcher) {
		f.httpClient = c
	}
}

// WithClock sets the clock used to wait after rate limiting
func WithClock(c clock.Clock) Option {
	return func(f *AirtableFetcher) {
		f.clock = c
	}
}

// WithBackOff sets the factory of the policy applied to HTTP 429 responses.
// A fresh policy is created for every page request.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(f *AirtableFetcher) {
		f.newBackOff = newBackOff
	}
}

// WithRateLimitHook registers a callback invoked on every HTTP 429
func WithRateLimitHook(fn RateLimitFunc) Option {
	return func(f *AirtableFetcher) {
		f.onRateLimit = fn
	}
}

// WithTracer enables tracing of fetches
func WithTracer(tracer trace.Tracer) Option {
	return func(f *AirtableFetcher) {
		f.tracer = tracer
	}
}

// NewAirtableFetcher creates a fetcher for the table described by cfg
func NewAirtableFetcher(cfg *config.UpstreamConfig, opts ...Option) (*AirtableFetcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("upstream configuration is required")
	}
	if cfg.BaseID == "" || cfg.Table == "" {
		return nil, fmt.Errorf("upstream base and table are required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultEndpoint
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	wait := cfg.RateLimitBackoff.Std()
	if wait <= 0 {
		wait = config.DefaultRateLimitBackoff
	}

	f := &AirtableFetcher{
		httpClient: httpclient.NewDefaultClient(cfg.RequestTimeout.Std(),
			httpclient.WithUserAgent("placesync/"+versions.Version)),
		clock:      clock.RealClock{},
		newBackOff: func() backoff.BackOff { return backoff.NewConstantBackOff(wait) },
		baseURL:    endpoint + "/v0/" + url.PathEscape(cfg.BaseID) + "/" + url.PathEscape(cfg.Table),
		baseID:     cfg.BaseID,
		table:      cfg.Table,
		token:      cfg.Token,
		view:       cfg.View,
		pageSize:   pageSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// FetchAll implements Fetcher
func (f *AirtableFetcher) FetchAll(ctx context.Context) ([]Record, error) {
	ctx, span := otel.StartSpan(ctx, f.tracer, "sources.FetchAll",
		trace.WithAttributes(
			otel.AttrUpstreamBase.String(f.baseID),
			otel.AttrUpstreamTable.String(f.table),
			otel.AttrPageSize.Int(f.pageSize),
		),
	)
	defer span.End()

	start := f.clock.Now()
	records := make([]Record, 0, f.pageSize)
	offset := ""

	for page := 1; ; page++ {
		pageURL := f.pageURL(offset)

		body, err := f.getPage(ctx, page, pageURL)
		if err != nil {
			otel.RecordError(span, err)
			return nil, err
		}

		pageRecords, next, err := parsePage(body)
		if err != nil {
			err = &UpstreamError{Page: page, URL: pageURL, Err: err}
			otel.RecordError(span, err)
			return nil, err
		}
		records = append(records, pageRecords...)

		slog.DebugContext(ctx, "Fetched upstream page",
			"page", page,
			"records", len(pageRecords),
			"has_offset", next != "")

		if next == "" {
			span.SetAttributes(
				otel.AttrResultCount.Int(len(records)),
				otel.AttrPageNumber.Int(page),
			)
			slog.InfoContext(ctx, "Upstream fetch completed",
				"table", f.table,
				"pages", page,
				"records", len(records),
				"duration", f.clock.Since(start).String())
			return records, nil
		}
		offset = next
	}
}

// getPage performs one page request, waiting and retrying on HTTP 429
func (f *AirtableFetcher) getPage(ctx context.Context, page int, pageURL string) ([]byte, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token)

	policy := f.newBackOff()
	policy.Reset()

	for retry := 0; ; retry++ {
		if err := ctx.Err(); err != nil {
			return nil, &UpstreamError{Page: page, URL: pageURL, Err: err}
		}

		body, err := f.httpClient.Get(ctx, pageURL, header)
		if err == nil {
			return body, nil
		}
		if !httpclient.IsRateLimited(err) {
			return nil, &UpstreamError{
				Page:       page,
				URL:        pageURL,
				StatusCode: httpclient.StatusCode(err),
				Err:        err,
			}
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return nil, &UpstreamError{
				Page:       page,
				URL:        pageURL,
				StatusCode: http.StatusTooManyRequests,
				Err:        fmt.Errorf("rate limit retries exhausted: %w", err),
			}
		}

		slog.WarnContext(ctx, "Upstream rate limited, waiting before retry",
			"page", page,
			"retry", retry+1,
			"wait", wait.String())
		trace.SpanFromContext(ctx).AddEvent("rate_limited",
			trace.WithAttributes(otel.AttrPageNumber.Int(page), otel.AttrRetryAttempt.Int(retry+1)))
		if f.onRateLimit != nil {
			f.onRateLimit(ctx, page, wait)
		}

		f.clock.Sleep(wait)
	}
}

func (f *AirtableFetcher) pageURL(offset string) string {
	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(f.pageSize))
	if f.view != "" {
		q.Set("view", f.view)
	}
	if offset != "" {
		q.Set("offset", offset)
	}
	return f.baseURL + "?" + q.Encode()
}

var errMalformedPage = errors.New("malformed upstream response")

// parsePage decodes one page body into records and the next offset token
func parsePage(body []byte) ([]Record, string, error) {
	if !gjson.ValidBytes(body) {
		return nil, "", fmt.Errorf("%w: invalid JSON", errMalformedPage)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, "", fmt.Errorf("%w: expected a JSON object", errMalformedPage)
	}

	list := root.Get("records")
	if list.Exists() && !list.IsArray() {
		return nil, "", fmt.Errorf("%w: records is not an array", errMalformedPage)
	}

	var (
		records []Record
		bad     error
	)
	list.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			bad = fmt.Errorf("%w: record is not an object", errMalformedPage)
			return false
		}
		rec := Record{
			ID:     item.Get("id").String(),
			Fields: fields.MapFromResult(item.Get("fields")),
		}
		if created := item.Get("createdTime"); created.Exists() {
			if ts, err := time.Parse(time.RFC3339, created.String()); err == nil {
				rec.CreatedTime = ts
			}
		}
		records = append(records, rec)
		return true
	})
	if bad != nil {
		return nil, "", bad
	}

	return records, root.Get("offset").String(), nil
}

// Package sources retrieves the full record set of an upstream table.
//
// The upstream API is paginated with an opaque offset token: every response
// carries a page of records and, when more data exists, the token for the
// next page. The Fetcher walks pages strictly in order and returns every
// record or nothing.
//
// Architecture:
//   - Fetcher: interface consumed by the sync pipeline
//   - AirtableFetcher: HTTP implementation with bearer-token auth
//   - UpstreamError: identifies the page request that failed
//
// HTTP 429 responses are not failures: the fetcher waits according to a
// backoff policy on an injectable clock and repeats the identical request.
// Only the caller's context bounds that loop.
package sources

// Package sync runs one refresh of the place cache.
//
// A refresh is a three stage pipeline:
//
//   - fetch: download every record from the upstream table (sources.Fetcher)
//   - transform: convert the records to a FeatureCollection (transform.Transformer)
//   - commit: replace the cache file and the in-memory document (cache.Store)
//
// The Manager does not decide whether a refresh should run; throttling and
// mutual exclusion belong to the sync/coordinator subpackage. A failure in
// any stage is reported as an *Error naming the stage, and leaves the cache
// exactly as it was.
package sync

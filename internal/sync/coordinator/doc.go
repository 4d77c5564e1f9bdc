// Package coordinator serializes access to the place cache.
//
// The coordinator sits on top of sync.Manager and owns the cache.Store. It
// decides whether a pipeline run may start and guarantees that at most one
// runs at a time:
//
//   - GetCurrentOrBootstrap returns the cached document, building it on first use
//   - Refresh re-fetches the document unless the minimum refresh interval has not elapsed
//   - Health reports cache freshness and the persisted sync status
//
// # Exclusivity
//
// A single mutex guards every read and write of the store on the bootstrap
// and refresh paths, and is held for the whole fetch, transform and commit
// sequence, including rate-limit waits. Requests that arrive while a run of
// the same kind is in flight are collapsed with singleflight: they wait for
// that run and receive its outcome instead of starting another.
//
// # Throttling
//
// The time of the last successful refresh comes from the cache snapshot and
// is taken from the injected clock before the fetch starts. A refresh inside
// the minimum interval returns StatusThrottled with the remaining whole seconds.
// A process that has not refreshed yet is never throttled.
//
// # Usage Example
//
//	coord := coordinator.New(manager, store, cfg,
//	    coordinator.WithStatusPersistence(status.NewFileStatusPersistence(cfg.Cache.StatusPath)),
//	)
//	if err := coord.Start(ctx); err != nil {
//	    return err
//	}
//	snap, err := coord.GetCurrentOrBootstrap(ctx)
package coordinator

// Package resource tracks and limits process-private memory held by the
// local intern tier.
//
// Memory tracking uses a weighted semaphore for the hard limit and an atomic
// counter for usage. AcquireMemory never blocks; it fails fast with
// ErrMemoryLimitExceeded and the caller decides what to drop:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
//	if err := rc.AcquireMemory(n); err != nil {
//	    // keep the entry out of the cache
//	}
//	defer rc.ReleaseMemory(n)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource

// Package cache provides the recency list behind the local intern tier.
//
// LRU is a map plus container/list keyed by any comparable type. It is
// bounded by entry count and, optionally, by a resource.Controller memory
// budget. Nothing is evicted implicitly: callers inspect Back and decide,
// because eviction in the intern tiers carries policy (logging, metrics,
// promotion) that a generic container must not own.
//
// The type does not lock. The host serializes access to the local tier.
package cache

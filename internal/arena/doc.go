// Package arena provides fixed-element-size memory pools that live entirely
// inside a caller-supplied byte region.
//
// The Slab allocator hands out equally sized slots from a pre-sized region and
// recycles released slots through a free list. Every link it stores inside the
// region is a self-relative reference (see internal/srp), so the same image is
// valid in any process that maps it, at any base address.
//
// # Features
//
//   - O(1) Allocate and Release via free list + bump cursor
//   - No pointers outside the image: attaching to an existing region is free
//   - Verify recomputes the expected layout and walks the free list
//   - Iterate visits live slots in address order, optionally sampling
//
// The Flat heap is the byte-string companion: a bump allocator for
// length-prefixed records that are never released individually.
//
// # Safety
//
// Neither type locks. Mutation must be serialized by the caller; readers may
// share an image as long as no writer runs concurrently.
package arena

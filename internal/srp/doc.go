// Package srp implements self-relative references for memory images that may be
// mapped at a different base address in every process.
//
// A Ref stores the signed byte distance from the field that holds it to its
// target. Because only distances are persisted, the same bytes stay valid no
// matter where a region is mapped, and attaching to an existing image needs no
// pointer fix-up.
//
// # Layout
//
// Every multi-byte field written through this package is little-endian and
// fixed width. A Ref is always 4 bytes, independent of the host pointer width.
// The zero Ref is the null reference, so a field can never refer to itself.
//
// # Reachability
//
// InRange reports whether two virtual addresses are close enough to be linked
// with a Ref. Consumers that live outside the shared region use it to decide
// whether an interned payload can be referenced at all.
package srp

// Package mmap maps files and anonymous memory for use as shared regions.
//
// # Usage
//
//	m, err := mmap.Create("strings.dir", 1<<20)
//	if err != nil { ... }
//	defer m.Close()
//
//	region := &interndir.Region{Addr: m.Addr(), Data: m.Bytes()}
//
// A second process, or a second mapping in the same process, calls
// OpenShared on the same file. The two mappings usually start at different
// addresses; everything stored in the region must therefore be
// position-independent.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2) and madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile (Advise is a no-op)
//
// # Thread Safety
//
// Close is idempotent and protected by atomic operations. Callers must
// ensure nothing touches Bytes() after Close() returns.
package mmap

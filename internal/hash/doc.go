// Package hash provides the byte-string hash functions used to place
// entries in relocatable tables.
//
// A table image stores no hash values, so the function is part of the
// image's contract: every process that attaches to a shared directory must
// hash with the same Func it was built with.
//
//   - XXH64 (default): xxHash64, fast on short strings
//   - CRC32C64: CRC32-Castagnoli, hardware accelerated on x86 (SSE4.2) and
//     ARM (CRC extension)
package hash

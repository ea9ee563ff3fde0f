// Package testutil provides testing utilities for interndir.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Byte Strings
//
//	rng := testutil.NewRNG(seed)
//	keys := rng.UniqueStrings(1000, 4, 32) // distinct printable strings
//	b := rng.Bytes(16)                     // arbitrary bytes
//
// # Skewed Access
//
//	i := rng.Zipf(len(keys), 1.1) // hot keys first
package testutil

package hash

import (
	"github.com/cespare/xxhash/v2"
)

// Func hashes a byte string. Every process attached to one shared directory
// must use the same Func.
type Func func(data []byte) uint64

// Default is the hash used when none is configured.
var Default Func = XXH64

// XXH64 returns the 64-bit xxHash of data.
func XXH64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

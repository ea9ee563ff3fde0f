package testutil

import (
	"math"
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Bytes returns n arbitrary bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

const printable = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789/$_;<>()"

// String returns a printable string with a length in [minLen, maxLen].
func (r *RNG) String(minLen, maxLen int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stringLocked(minLen, maxLen)
}

func (r *RNG) stringLocked(minLen, maxLen int) string {
	n := minLen
	if maxLen > minLen {
		n += r.rand.Intn(maxLen - minLen + 1)
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = printable[r.rand.Intn(len(printable))]
	}
	return string(b)
}

// UniqueStrings returns num distinct printable strings with lengths in
// [minLen, maxLen]. The range must be able to hold num distinct strings.
func (r *RNG) UniqueStrings(num, minLen, maxLen int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, num)
	out := make([]string, 0, num)
	for len(out) < num {
		s := r.stringLocked(minLen, maxLen)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Zipf returns an index in [0, n) drawn from a Zipf distribution with
// exponent s > 1. Low indices are the hot keys.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}
	if s <= 1 {
		s = 1.0001
	}
	z := rand.NewZipf(r.rand, s, 1, uint64(n-1)) //nolint:gosec // n > 1
	if z == nil {
		return int(math.Floor(r.rand.Float64() * float64(n)))
	}
	return int(z.Uint64()) //nolint:gosec // bounded by n
}

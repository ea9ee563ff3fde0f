// Package prime picks hash table capacities from the sequence of primes.
package prime

// MaxSupported is the largest capacity the helpers will produce. Requests
// beyond it are reported as out of range rather than silently clamped.
const MaxSupported = 1 << 24

// SmallestAtLeast returns the smallest prime >= n. ok is false when that
// prime would exceed MaxSupported.
func SmallestAtLeast(n int) (uint32, bool) {
	if n <= 2 {
		return 2, true
	}
	if n > MaxSupported {
		return 0, false
	}
	if n%2 == 0 {
		n++
	}
	for ; n <= MaxSupported; n += 2 {
		if IsPrime(n) {
			return uint32(n), true //nolint:gosec // n <= MaxSupported
		}
	}
	return 0, false
}

// LargestAtMost returns the largest prime <= n, or 0 when n < 2. ok is false
// when n exceeds MaxSupported.
func LargestAtMost(n int) (uint32, bool) {
	if n > MaxSupported {
		return 0, false
	}
	if n < 2 {
		return 0, true
	}
	if n == 2 {
		return 2, true
	}
	if n%2 == 0 {
		n--
	}
	for ; n >= 3; n -= 2 {
		if IsPrime(n) {
			return uint32(n), true //nolint:gosec // n <= MaxSupported
		}
	}
	return 2, true
}

// IsPrime reports whether n is prime.
func IsPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	if n%3 == 0 {
		return n == 3
	}
	for i := 5; i*i <= n; i += 6 {
		if n%i == 0 || n%(i+2) == 0 {
			return false
		}
	}
	return true
}

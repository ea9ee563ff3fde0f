package prime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmallestAtLeast(t *testing.T) {
	tests := []struct {
		n    int
		want uint32
	}{
		{0, 2}, {1, 2}, {2, 2}, {3, 3}, {4, 5}, {14, 17}, {100, 101}, {1000, 1009},
	}
	for _, tt := range tests {
		got, ok := SmallestAtLeast(tt.n)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "n=%d", tt.n)
	}

	_, ok := SmallestAtLeast(MaxSupported + 1)
	assert.False(t, ok)
}

func TestLargestAtMost(t *testing.T) {
	tests := []struct {
		n    int
		want uint32
	}{
		{0, 0}, {1, 0}, {2, 2}, {3, 3}, {4, 3}, {10, 7}, {100, 97}, {1000, 997},
	}
	for _, tt := range tests {
		got, ok := LargestAtMost(tt.n)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "n=%d", tt.n)
	}

	_, ok := LargestAtMost(MaxSupported + 1)
	assert.False(t, ok)
}

func TestIsPrime(t *testing.T) {
	primes := map[int]bool{2: true, 3: true, 5: true, 7: true, 11: true, 13: true, 25: false, 49: false, 91: false, 97: true}
	for n, want := range primes {
		assert.Equal(t, want, IsPrime(n), "n=%d", n)
	}
}

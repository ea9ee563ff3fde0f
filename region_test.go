package interndir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReachability_Reaches(t *testing.T) {
	assert.True(t, FullyReachable.Reaches(0))
	assert.True(t, FullyReachable.Reaches(1<<60))
	assert.False(t, FullyUnreachable.Reaches(0))

	const base = 1 << 40
	r := PartiallyReachable(base, base+1<<20)
	assert.True(t, r.Reaches(base))
	assert.True(t, r.Reaches(base+1<<30))
	assert.True(t, r.Reaches(base-1<<30))
	// In range of lo but not of hi.
	assert.False(t, r.Reaches(base-1<<31+1<<10))
	assert.False(t, r.Reaches(base+1<<32))
}

func TestClassifyRange(t *testing.T) {
	const g = 1 << 30

	tests := []struct {
		name                 string
		consumerLo, consumer uint64
		regionLo, regionHi   uint64
		want                 Reachability
	}{
		{"nearby region", 0x1000, 0x2000, 0x3000, 0x4000, FullyReachable},
		{"region below", 4 * g, 4*g + 0x1000, 3 * g, 3*g + 0x1000, FullyReachable},
		{"far region", 0, 0x1000, 1 << 40, 1<<40 + 0x1000, FullyUnreachable},
		{"region end out of range", 0, 0x1000, 0, 3 * g, PartiallyReachable(0, 0x1000)},
		{"region start out of range", 3 * g, 3*g + 0x1000, 0, 3 * g, PartiallyReachable(3*g, 3*g+0x1000)},
		{"region spans the window", 8 * g, 8*g + 0x1000, 0, 16 * g, PartiallyReachable(8*g, 8*g+0x1000)},
		{"consumer too large", 0, 1 << 40, 0x1000, 0x2000, FullyUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyRange(tt.consumerLo, tt.consumer, tt.regionLo, tt.regionHi)
			assert.Equal(t, tt.want, got, got.String())
		})
	}
}

func TestReachability_String(t *testing.T) {
	assert.Equal(t, "FullyReachable", FullyReachable.String())
	assert.Equal(t, "FullyUnreachable", FullyUnreachable.String())
	assert.Equal(t, "PartiallyReachable(0x10, 0x20)", PartiallyReachable(0x10, 0x20).String())
}

func TestTier_String(t *testing.T) {
	assert.Equal(t, "local", TierLocal.String())
	assert.Equal(t, "shared", TierShared.String())
	assert.Equal(t, "Tier(7)", Tier(7).String())
}

func TestRegion_Contains(t *testing.T) {
	r := &Region{Addr: 0x1000, Data: make([]byte, 16)}
	assert.True(t, r.Contains(0x1000))
	assert.True(t, r.Contains(0x100f))
	assert.False(t, r.Contains(0x1010))
	assert.False(t, r.Contains(0xfff))
}

func TestWeights(t *testing.T) {
	assert.Equal(t, uint16(2), weightFor(0))
	assert.Equal(t, uint16(4), weightFor(1))
	assert.Equal(t, uint16(4), weightFor(2))
	assert.Equal(t, uint16(12), weightFor(10))
	assert.Equal(t, uint16(MaxWeight), weightFor(1<<20))

	assert.Equal(t, uint16(30), addWeight(10, 20))
	assert.Equal(t, uint16(MaxWeight), addWeight(MaxWeight-1, 5))
	assert.Equal(t, uint16(MaxWeight), addWeight(MaxWeight, MaxWeight))
}

package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	// Test with limit
	c := NewController(Config{MemoryLimitBytes: 100})

	// Acquire 50
	err := c.AcquireMemory(50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), c.MemoryUsage())

	// Acquire 40
	err = c.AcquireMemory(40)
	require.NoError(t, err)
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Acquire 20 (should fail - limit exceeded)
	err = c.AcquireMemory(20)
	assert.ErrorIs(t, err, ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Release 50
	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	// Now Acquire 20 should succeed
	err = c.AcquireMemory(20)
	require.NoError(t, err)
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 0})

	err := c.AcquireMemory(1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_Nil(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireMemory(1<<40))
	c.ReleaseMemory(1 << 40)
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.MemoryLimit())
}

func TestController_ExactLimit(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 64})

	require.NoError(t, c.AcquireMemory(64))
	assert.ErrorIs(t, c.AcquireMemory(1), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(64), c.MemoryLimit())

	// Non-positive requests are free.
	require.NoError(t, c.AcquireMemory(0))
	require.NoError(t, c.AcquireMemory(-5))
	assert.Equal(t, int64(64), c.MemoryUsage())
}

func TestController_Fits(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 64})
	require.NoError(t, c.AcquireMemory(60))

	assert.True(t, c.Fits(4))
	assert.False(t, c.Fits(5))
	assert.True(t, c.Fits(-10))
	assert.Equal(t, int64(60), c.MemoryUsage())

	assert.True(t, NewController(Config{}).Fits(1<<40))
	var none *Controller
	assert.True(t, none.Fits(1<<40))
}

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCache(t *testing.T) {
	now := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	c := NewTTLCacheWithClock(func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	c.Set("b", "forever", 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	v, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "forever", v)

	c.Delete("b")
	_, ok = c.Get("b")
	assert.False(t, ok)
}

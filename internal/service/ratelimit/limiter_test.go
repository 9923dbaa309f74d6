package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return now })

	assert.True(t, l.Allow("k", 2, 1))
	assert.True(t, l.Allow("k", 2, 1))
	assert.False(t, l.Allow("k", 2, 1))
	assert.True(t, l.Allow("other", 2, 1))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("k", 2, 1))
	assert.False(t, l.Allow("k", 2, 1))
}

func TestPerMinute(t *testing.T) {
	c, r := PerMinute(180)
	assert.Equal(t, 30.0, c)
	assert.Equal(t, 3.0, r)

	c, r = PerMinute(0)
	assert.Equal(t, 1.0, c)
	assert.InDelta(t, 1.0/60, r, 1e-9)
}

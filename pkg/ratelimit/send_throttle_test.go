package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSendThrottleCooldown(t *testing.T) {
	now := time.Unix(1000, 0)
	th := NewSendThrottle(3, 5*time.Second, 15*time.Second)
	th.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, th.Allow("general"), "message %d", i)
	}
	assert.False(t, th.Allow("general"))
	assert.Equal(t, 15*time.Second, th.Remaining("general"))

	// Diğer kanallar etkilenmez
	assert.True(t, th.Allow("random"))

	now = now.Add(10 * time.Second)
	assert.False(t, th.Allow("general"))
	assert.Equal(t, 5*time.Second, th.Remaining("general"))

	now = now.Add(6 * time.Second)
	assert.True(t, th.Allow("general"))
	assert.Zero(t, th.Remaining("general"))
}

func TestSendThrottleWindowResets(t *testing.T) {
	now := time.Unix(1000, 0)
	th := NewSendThrottle(2, time.Second, time.Minute)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("c"))
	assert.True(t, th.Allow("c"))
	now = now.Add(2 * time.Second)
	assert.True(t, th.Allow("c"))
	assert.True(t, th.Allow("c"))
	assert.False(t, th.Allow("c"))
}

func TestSendThrottleDisabled(t *testing.T) {
	th := NewSendThrottle(0, time.Second, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, th.Allow("c"))
	}

	var nilThrottle *SendThrottle
	assert.True(t, nilThrottle.Allow("c"))
	assert.Zero(t, nilThrottle.Remaining("c"))
}

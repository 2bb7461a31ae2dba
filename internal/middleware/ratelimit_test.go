package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsUpToMax(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow("k"))
	}
	assert.False(t, rl.allow("k"))
	// Other keys are unaffected.
	assert.True(t, rl.allow("other"))
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := newRateLimiter(1, 10*time.Millisecond)

	assert.True(t, rl.allow("k"))
	assert.False(t, rl.allow("k"))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, rl.allow("k"))
}

func TestMaskSessionID(t *testing.T) {
	assert.Equal(t, "****", MaskSessionID("abc"))
	assert.Equal(t, "dev-***", MaskSessionID("dev-alice"))
}

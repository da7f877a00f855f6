package httpmiddleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhaustion(t *testing.T) {
	l := NewTokenBucket(3, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("10.0.0.1"), "request %d within capacity", i)
	}
	assert.False(t, l.allow("10.0.0.1"), "capacity exhausted")

	// Other clients are tracked independently.
	assert.True(t, l.allow("10.0.0.2"))
}

func TestTokenBucketDefaultsCapacity(t *testing.T) {
	l := NewTokenBucket(0, 5)
	assert.Equal(t, 5, l.capacity)
}

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

func fail() (int, error) { return 0, errDown }
func ok() (int, error)   { return 1, nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("bars", BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := Do(b, fail)
		assert.ErrorIs(t, err, errDown)
	}
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	calls := 0
	_, err := Do(b, func() (int, error) { calls++; return 1, nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
	assert.EqualValues(t, 1, b.Rejected())
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker("bars", BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})

	_, _ = Do(b, fail)
	_, err := Do(b, ok)
	require.NoError(t, err)
	_, _ = Do(b, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	now := time.Date(2025, 6, 2, 17, 0, 0, 0, time.UTC)
	b := NewBreaker("bars", BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: time.Minute})
	b.now = func() time.Time { return now }

	_, _ = Do(b, fail)
	require.Equal(t, StateOpen, b.State())

	now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow())

	// A failed trial re-opens.
	_, _ = Do(b, fail)
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(2 * time.Minute)
	v, err := Do(b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, StateClosed, b.State())
}

package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLinearBackoffSchedule(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 1}

	// k-th scheduled delay equals baseDelay * k
	for k := 1; k <= 3; k++ {
		delay, ok := p.NextDelay()
		require.True(t, ok)
		require.Equal(t, time.Duration(k)*2*time.Second, delay)
	}

	// No attempt is scheduled once the cap is exceeded
	_, ok := p.NextDelay()
	require.False(t, ok)
}

func TestExponentialBackoffSchedule(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 4, BaseDelay: time.Second, Multiplier: 2}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for _, expected := range want {
		delay, ok := p.NextDelay()
		require.True(t, ok)
		require.Equal(t, expected, delay)
	}

	_, ok := p.NextDelay()
	require.False(t, ok)
}

func TestResetRestartsScheduleFromFirstStep(t *testing.T) {
	p := DefaultReconnectPolicy()

	first, ok := p.NextDelay()
	require.True(t, ok)
	p.NextDelay()
	p.NextDelay()

	// A successful connection resets the attempt counter; the next
	// abnormal closure begins backoff from the first step again.
	p.Reset()
	require.Zero(t, p.Attempt)

	delay, ok := p.NextDelay()
	require.True(t, ok)
	require.Equal(t, first, delay)
}

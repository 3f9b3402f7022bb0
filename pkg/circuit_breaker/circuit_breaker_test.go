package circuit_breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_circuitBreaker_Call(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	successfulService := func() error { return nil }
	failingService := func() error { return errors.New("smtp: connection refused") }

	cb := newCircuitBreaker(10, 2*time.Second, 0.30, 3, clock)

	for i := 0; i < 20; i++ {
		require.NoError(t, cb.Call(successfulService))
	}
	require.Equal(t, Closed, cb.State())

	// 3 of 10 failures open the breaker
	for i := 0; i < 3; i++ {
		require.Error(t, cb.Call(failingService))
	}
	require.Equal(t, Open, cb.State())
	require.ErrorIs(t, cb.Call(successfulService), ErrOpenCB)

	now = now.Add(3 * time.Second)
	require.NoError(t, cb.Call(successfulService))
	require.Equal(t, HalfOpen, cb.State())

	// a failure while probing opens it again
	require.Error(t, cb.Call(failingService))
	require.Equal(t, Open, cb.State())

	now = now.Add(3 * time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Call(successfulService))
	}
	require.Equal(t, Closed, cb.State())
}

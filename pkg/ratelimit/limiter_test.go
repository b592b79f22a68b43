package ratelimit

import (
	"sync"
	"testing"

	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestBudgetExhaustion(t *testing.T) {
	l := New(2)
	require.NoError(t, l.Take())
	require.NoError(t, l.Take())

	err := l.Take()
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeApplication))
	require.False(t, apperrors.IsRetryable(err))
	require.Equal(t, 2, l.Used())
	require.Equal(t, 0, l.Remaining())
}

func TestZeroBudgetIsUnlimited(t *testing.T) {
	l := New(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Take())
	}
	require.Equal(t, -1, l.Remaining())
}

func TestConcurrentTakeNeverOvershoots(t *testing.T) {
	const budget = 50
	l := New(budget)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Take()
		}()
	}
	wg.Wait()

	require.Equal(t, budget, l.Used())
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	require.NoError(t, l.Take())
	require.Equal(t, -1, l.Remaining())
}

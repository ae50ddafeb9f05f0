package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Base: time.Millisecond, MinWait: time.Millisecond, MaxWait: time.Millisecond}
}

func TestPolicyRetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if calls < 3 {
			return NewTransient("test", "flaky", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicyStopsOnFatal(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context, int) error {
		calls++
		return NewFatal("test", "rejected", nil)
	})
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, calls)
}

func TestPolicyStopsOnUnclassifiedError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context, int) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPolicyExhaustionReturnsLastTransient(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context, int) error {
		calls++
		return NewTransient("test", "down", nil)
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, calls)
}

func TestPolicyBackoffHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, Base: time.Hour, MinWait: time.Hour, MaxWait: time.Hour}

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context, int) error {
			return NewTransient("test", "down", nil)
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestPolicyWaitBounds(t *testing.T) {
	p := Policy{MaxAttempts: 15, Base: time.Second, MinWait: 2 * time.Second, MaxWait: 120 * time.Second}
	for attempt := 1; attempt <= 20; attempt++ {
		for i := 0; i < 50; i++ {
			w := p.Wait(attempt)
			assert.GreaterOrEqual(t, w, 2*time.Second)
			assert.LessOrEqual(t, w, 120*time.Second)
		}
	}
	// Early attempts never exceed the exponential ceiling.
	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, p.Wait(3), 4*time.Second)
	}
}

func TestPolicyNormalizesZeroValue(t *testing.T) {
	p := Policy{}.normalized()
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultBackoffBase, p.Base)
	assert.Equal(t, time.Duration(0), p.Wait(1))
}

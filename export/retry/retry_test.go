package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{MaxAttempts: 4, Initial: time.Millisecond, Max: 4 * time.Millisecond, Multiplier: 2}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), fast, func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
}

func TestDoPermanent(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), fast, func(ctx context.Context) error {
		calls++
		return Permanent(boom)
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Permanent(nil))
}

func TestDoMaxElapsed(t *testing.T) {
	p := Policy{MaxAttempts: 100, Initial: 20 * time.Millisecond, MaxElapsed: 30 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})
	require.Error(t, err)
	assert.Less(t, calls, 4)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, Initial: time.Hour}
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, func(ctx context.Context) error { return errors.New("down") })
	}()
	cancel()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestDoAttemptTimeout(t *testing.T) {
	p := Policy{MaxAttempts: 2, Initial: time.Millisecond, AttemptTimeout: 5 * time.Millisecond}
	err := Do(context.Background(), p, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateOpensOnce(t *testing.T) {
	calls := 0
	g := NewGate(func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("warming up")
		}
		return nil
	}, fast)

	require.NoError(t, g.Wait(context.Background()))
	assert.True(t, g.Open())
	require.NoError(t, g.Wait(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestGateReportsNotReady(t *testing.T) {
	g := NewGate(func(ctx context.Context) error { return errors.New("never") }, fast)
	err := g.Wait(context.Background())
	require.Error(t, err)
	assert.False(t, g.Open())
}

func TestDefaultPolicyBoundsEachAttempt(t *testing.T) {
	require.Positive(t, DefaultPolicy.AttemptTimeout)
	assert.Less(t, DefaultPolicy.AttemptTimeout, DefaultPolicy.MaxElapsed)

	p := DefaultPolicy
	p.Initial = time.Millisecond
	p.AttemptTimeout = 10 * time.Millisecond
	p.MaxAttempts = 2

	start := time.Now()
	g := NewGate(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, p)
	err := g.Wait(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, g.Open())
}

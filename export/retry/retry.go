// Package retry provides bounded exponential backoff and a readiness gate.
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Policy bounds a retry loop by attempts and by total elapsed time.
type Policy struct {
	MaxAttempts    int
	Initial        time.Duration
	Max            time.Duration
	MaxElapsed     time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
}

// DefaultPolicy suits short in-process waits. Each attempt gets its own
// deadline so a blocking check cannot outlive MaxElapsed by much.
var DefaultPolicy = Policy{
	MaxAttempts:    5,
	Initial:        50 * time.Millisecond,
	Max:            time.Second,
	MaxElapsed:     5 * time.Second,
	Multiplier:     2,
	AttemptTimeout: 2 * time.Second,
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, the policy is
// exhausted or ctx is done. The last error is returned wrapped.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	start := time.Now()
	wait := p.Initial

	var err error
	for attempt := 1; ; attempt++ {
		err = call(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, err)
		}
		if attempt >= p.MaxAttempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}
		if p.MaxElapsed > 0 && time.Since(start)+wait > p.MaxElapsed {
			return fmt.Errorf("gave up after %s: %w", time.Since(start).Round(time.Millisecond), err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, err)
		case <-timer.C:
		}

		wait = time.Duration(float64(wait) * p.Multiplier)
		if p.Max > 0 && wait > p.Max {
			wait = p.Max
		}
	}
}

func call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// Gate waits for a collaborator to become ready. Once a check has passed the
// gate stays open.
type Gate struct {
	check  func(ctx context.Context) error
	policy Policy
	open   atomic.Bool
}

func NewGate(check func(ctx context.Context) error, p Policy) *Gate {
	return &Gate{check: check, policy: p}
}

func (g *Gate) Wait(ctx context.Context) error {
	if g.open.Load() {
		return nil
	}
	if err := Do(ctx, g.policy, g.check); err != nil {
		return fmt.Errorf("not ready: %w", err)
	}
	g.open.Store(true)
	return nil
}

// Open reports whether a check has already passed.
func (g *Gate) Open() bool {
	return g.open.Load()
}

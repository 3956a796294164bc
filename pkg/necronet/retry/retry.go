// Package retry runs an operation repeatedly on a capped exponential
// schedule until it reports completion, fails, or exhausts its attempt
// budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrAttemptsExhausted is returned by Do when the operation never reported
// completion within Policy.MaxAttempts attempts.
var ErrAttemptsExhausted = errors.New("retry: attempt budget exhausted")

// Policy configures the delay schedule and attempt budget.
type Policy struct {
	InitialInterval time.Duration // delay after the first attempt
	Multiplier      float64       // growth factor applied after every delay
	MaxInterval     time.Duration // upper bound on any single delay
	MaxAttempts     int           // number of attempts before giving up
}

// DefaultPolicy is 2s growing by 1.5x up to 10s, for at most 60 attempts.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 2 * time.Second,
		Multiplier:      1.5,
		MaxInterval:     10 * time.Second,
		MaxAttempts:     60,
	}
}

// Validate checks that the policy describes a finite, non-decreasing schedule.
func (p Policy) Validate() error {
	if p.InitialInterval <= 0 {
		return fmt.Errorf("retry: initial interval must be positive, got %s", p.InitialInterval)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("retry: multiplier must be >= 1, got %g", p.Multiplier)
	}
	if p.MaxInterval < p.InitialInterval {
		return fmt.Errorf("retry: max interval %s is below initial interval %s", p.MaxInterval, p.InitialInterval)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	return nil
}

// NewBackOff returns a fresh schedule for p without jitter. The first
// NextBackOff is InitialInterval; each following value is the previous one
// times Multiplier, capped at MaxInterval.
func (p Policy) NewBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialInterval,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxInterval,
	}
	b.Reset()
	return b
}

// Delays lists the first n delays of the schedule.
func (p Policy) Delays(n int) []time.Duration {
	b := p.NewBackOff()
	out := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Operation is one attempt. Attempts are numbered from 1. Returning
// done=true stops with success; a non-nil error stops immediately and is
// returned by Do unchanged.
type Operation func(ctx context.Context, attempt int) (done bool, err error)

type runner struct {
	sleep SleepFunc
}

// Option configures Do.
type Option func(*runner)

// WithSleep replaces the wait between attempts, typically with a fake clock in tests.
func WithSleep(fn SleepFunc) Option {
	return func(r *runner) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

// Do runs op until it is done, fails, or has been attempted p.MaxAttempts
// times. Attempts never overlap: the next one starts only after the
// previous one returned and the scheduled delay elapsed. ctx is checked
// before every attempt and interrupts the delay.
func Do(ctx context.Context, p Policy, op Operation, opts ...Option) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r := &runner{sleep: Sleep}
	for _, opt := range opts {
		opt(r)
	}

	schedule := p.NewBackOff()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := op(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if attempt >= p.MaxAttempts {
			return ErrAttemptsExhausted
		}

		if err := r.sleep(ctx, schedule.NextBackOff()); err != nil {
			return err
		}
	}
}

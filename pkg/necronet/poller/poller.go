// Package poller drives an artifact to a terminal status by fetching it
// repeatedly on a capped exponential schedule.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/necronet/pkg/necronet"
	"github.com/tendant/necronet/pkg/necronet/retry"
)

// Fetcher loads the current state of one artifact. *client.Client satisfies it.
type Fetcher interface {
	GetArtifact(ctx context.Context, id string) (*necronet.Artifact, error)
}

// StatusFunc receives every observed artifact, including the terminal one.
type StatusFunc func(artifact *necronet.Artifact)

// Poller polls artifacts through a Fetcher.
type Poller struct {
	fetcher Fetcher
	policy  retry.Policy
	sleep   retry.SleepFunc
	logger  *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithPolicy replaces the whole schedule and attempt budget.
func WithPolicy(p retry.Policy) Option {
	return func(pl *Poller) {
		pl.policy = p
	}
}

// WithMaxAttempts sets how many fetches a run may make before it times out.
func WithMaxAttempts(n int) Option {
	return func(pl *Poller) {
		pl.policy.MaxAttempts = n
	}
}

// WithSleep replaces the wait between fetches.
func WithSleep(fn retry.SleepFunc) Option {
	return func(pl *Poller) {
		if fn != nil {
			pl.sleep = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(pl *Poller) {
		if logger != nil {
			pl.logger = logger
		}
	}
}

// New creates a Poller using retry.DefaultPolicy.
func New(f Fetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher: f,
		policy:  retry.DefaultPolicy(),
		sleep:   retry.Sleep,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy returns the schedule used by Poll.
func (p *Poller) Policy() retry.Policy {
	return p.policy
}

// Poll fetches id until its status is ready or failed and returns that
// artifact. onStatusChange, if set, is called with every fetched artifact
// before the terminal check. A fetch error ends the run with that error as
// a *necronet.APIError; running out of attempts ends it with a Timeout
// APIError. When ctx is done the run stops before the next fetch or
// callback and returns ctx.Err().
func (p *Poller) Poll(ctx context.Context, id string, onStatusChange StatusFunc) (*necronet.Artifact, error) {
	var last *necronet.Artifact

	op := func(ctx context.Context, attempt int) (bool, error) {
		artifact, err := p.fetcher.GetArtifact(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			return false, necronet.AsAPIError(err)
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		if err := necronet.CheckObservation(last, artifact); err != nil {
			p.logger.Warn("unexpected artifact observation", "artifact_id", id, "attempt", attempt, "err", err)
		}
		last = artifact
		p.logger.Debug("artifact observed", "artifact_id", id, "attempt", attempt, "status", artifact.Status)

		if onStatusChange != nil {
			onStatusChange(artifact)
		}
		return artifact.Status.IsTerminal(), nil
	}

	err := retry.Do(ctx, p.policy, op, retry.WithSleep(p.sleep))
	switch {
	case err == nil:
		p.logger.Info("artifact reached terminal status", "artifact_id", id, "status", last.Status)
		return last, nil
	case errors.Is(err, retry.ErrAttemptsExhausted):
		p.logger.Info("artifact polling timed out", "artifact_id", id, "status", last.Status, "attempts", p.policy.MaxAttempts)
		return nil, necronet.NewTimeoutError(fmt.Errorf("artifact %s still %s after %d attempts: %w",
			id, last.Status, p.policy.MaxAttempts, err))
	default:
		return nil, err
	}
}

// Poll is a shorthand for New(f, opts...).Poll(ctx, id, onStatusChange).
func Poll(ctx context.Context, f Fetcher, id string, onStatusChange StatusFunc, opts ...Option) (*necronet.Artifact, error) {
	return New(f, opts...).Poll(ctx, id, onStatusChange)
}

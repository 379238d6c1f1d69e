// Package service holds adapters that compose infrastructure pieces into
// the collaborators the application layer depends on.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
	"github.com/alem-hub/grade-analytics/pkg/circuitbreaker"
	"github.com/alem-hub/grade-analytics/pkg/logger"
	"github.com/alem-hub/grade-analytics/pkg/retry"
)

// ResilientProviderOptions configures NewResilientProvider.
type ResilientProviderOptions struct {
	// Retry options; attempts default to 3.
	Retry []retry.Option

	// IsTransient marks errors worth retrying. Nil retries nothing.
	IsTransient func(error) bool

	// Breaker guards the wrapped provider; nil disables breaking.
	Breaker *circuitbreaker.CircuitBreaker

	// Timeout bounds one fetch attempt; zero means no bound.
	Timeout time.Duration

	Logger *logger.Logger
}

// ResilientProvider wraps a score.Provider with per-attempt timeouts,
// retries on transient errors and a circuit breaker. Failures surface as
// data-access errors.
type ResilientProvider struct {
	next    score.Provider
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	log     *logger.Logger
}

var _ score.Provider = (*ResilientProvider)(nil)

// NewResilientProvider decorates next.
func NewResilientProvider(next score.Provider, opts ResilientProviderOptions) *ResilientProvider {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("score_provider"))

	isTransient := opts.IsTransient
	if isTransient == nil {
		isTransient = func(error) bool { return false }
	}

	retryOpts := append([]retry.Option{
		retry.WithRetryIf(func(err error) bool {
			return !circuitbreaker.IsRejection(err) && isTransient(err)
		}),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying score fetch",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	}, opts.Retry...)

	return &ResilientProvider{
		next:    next,
		retrier: retry.New(retryOpts...),
		breaker: opts.Breaker,
		timeout: opts.Timeout,
		log:     log,
	}
}

// SourceID reports the identity of the wrapped provider.
func (p *ResilientProvider) SourceID() string {
	return score.SourceID(p.next)
}

// FetchScores fetches through the decorations.
func (p *ResilientProvider) FetchScores(ctx context.Context, filter score.Filter) ([]score.Record, error) {
	start := time.Now()

	records, err := retry.DoWithData(ctx, p.retrier, func(ctx context.Context) ([]score.Record, error) {
		var out []score.Record
		err := p.guard(ctx, func(ctx context.Context) error {
			if p.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, p.timeout)
				defer cancel()
			}
			var err error
			out, err = p.next.FetchScores(ctx, filter)
			return err
		})
		return out, err
	})
	if err != nil {
		p.log.Error("score fetch failed", logger.Latency(time.Since(start)), logger.Err(err))
		var de *shared.DomainError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, shared.WrapError("score", "FetchScores", shared.ErrDataAccess, "fetch score records", err)
	}

	p.log.Debug("scores fetched", logger.RecordCount(len(records)), logger.Latency(time.Since(start)))
	return records, nil
}

func (p *ResilientProvider) guard(ctx context.Context, fn func(context.Context) error) error {
	if p.breaker == nil {
		return fn(ctx)
	}
	return p.breaker.Execute(ctx, fn)
}

package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultMaxAttempts = 3

// Retrying retries transient failures of the wrapped generator with exponential backoff.
type Retrying struct {
	next        Generator
	maxAttempts int
	initial     time.Duration
	log         *slog.Logger
}

func WithRetry(next Generator, maxAttempts int, initial time.Duration, log *slog.Logger) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if initial <= 0 {
		initial = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retrying{next: next, maxAttempts: maxAttempts, initial: initial, log: log}
}

func (r *Retrying) Generate(ctx context.Context, req Request) (*Image, error) {
	attempt := 0
	op := func() (*Image, error) {
		attempt++
		img, err := r.next.Generate(ctx, req)
		if err == nil {
			return img, nil
		}
		if !IsTransient(err) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		r.log.Warn("transient generation failure", "attempt", attempt, "max_attempts", r.maxAttempts, "err", err)
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxAttempts-1)), ctx)

	img, err := backoff.RetryWithData(op, policy)
	if err != nil {
		if attempt > 1 {
			return nil, fmt.Errorf("generate after %d attempts: %w", attempt, err)
		}
		return nil, fmt.Errorf("generate: %w", err)
	}
	return img, nil
}

var _ Generator = (*Retrying)(nil)

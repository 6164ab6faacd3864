package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxRetries      = 5
	DefaultInitialInterval = 5 * time.Millisecond
	DefaultMaxInterval     = 250 * time.Millisecond
)

type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

// RetryExhaustedError is returned when every attempt of a transaction lost to
// a concurrent writer.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("transaction failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// Retry runs attempt until it succeeds, fails with something other than
// ErrConflict, or the policy runs out.
func Retry(ctx context.Context, policy RetryPolicy, attempt func() error) error {
	exp := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		exp.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		exp.MaxInterval = policy.MaxInterval
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(exp, policy.MaxRetries), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := attempt()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConflict) {
			log.Warn().
				Int("attempt", attempts).
				Uint64("max_retries", policy.MaxRetries).
				Msg("Transaction conflict, retrying")
			return err
		}
		return backoff.Permanent(err)
	}, b)

	if err != nil && errors.Is(err, ErrConflict) {
		return &RetryExhaustedError{Attempts: attempts, Err: err}
	}
	return err
}

// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var retryAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "clarity_analysis_retry_attempts",
	Help:    "Attempts consumed per retried operation",
	Buckets: []float64{1, 2, 3, 4, 5},
})

// RetryConfig configures the retry executor.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget, including the first call.
	// Default: 3
	MaxAttempts int

	// BaseDelay seeds the exponential backoff: the non-jittered wait
	// before attempt n (n >= 2) is BaseDelay * 2^(n-2). Default: 1s
	BaseDelay time.Duration

	// MaxJitter bounds the uniform random component added to every wait,
	// decorrelating concurrent callers. Default: 1s
	MaxJitter time.Duration
}

// DefaultRetryConfig returns the policy defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxJitter:   time.Second,
	}
}

// RetryResult contains the outcome of a retried operation.
type RetryResult struct {
	// Attempts is the number of attempts made.
	Attempts int

	// TotalDuration is total time spent including backoff waits.
	TotalDuration time.Duration

	// LastError is the error from the final attempt, nil on success.
	LastError error
}

// RetryableFunc is one unit of work. Retried on retryable errors; see
// IsRetryable.
type RetryableFunc func(ctx context.Context, attempt int) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the executor surfaces it immediately without
// consuming further attempts. Validation and configuration failures are
// permanent: retrying cannot fix the request.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether an error should trigger another attempt.
//
// Errors wrapped by Permanent and breaker short-circuits are not
// retryable here: the former cannot succeed on retry, and the breaker
// owns its own backoff timeline. Context cancellation ends the retry
// loop through the wait select, not through classification.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return true
}

// BackoffDelay returns the non-jittered wait before the given attempt
// (attempt >= 2): BaseDelay * 2^(attempt-2). Exposed separately from
// Retry so the growth schedule is independently testable.
func BackoffDelay(config RetryConfig, attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	return config.BaseDelay << uint(attempt-2)
}

// Retry executes fn with bounded attempts and exponential backoff plus
// uniform jitter.
//
// Inputs:
//   - ctx: Cancels waits between attempts. Must not be nil.
//   - config: Attempt budget and backoff policy.
//   - fn: The unit of work.
//
// Outputs:
//   - RetryResult: Attempt bookkeeping for result metadata.
//   - error: Nil on success; the last attempt's error after exhaustion;
//     the first non-retryable error immediately.
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) (RetryResult, error) {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultRetryConfig().BaseDelay
	}

	start := time.Now()
	result := RetryResult{}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.LastError = err
			result.TotalDuration = time.Since(start)
			return result, err
		}

		err := fn(ctx, attempt)
		if err == nil {
			result.TotalDuration = time.Since(start)
			retryAttempts.Observe(float64(result.Attempts))
			return result, nil
		}
		result.LastError = err

		if !IsRetryable(err) || attempt == config.MaxAttempts {
			break
		}

		wait := BackoffDelay(config, attempt+1)
		if config.MaxJitter > 0 {
			wait += time.Duration(rand.Int63n(int64(config.MaxJitter)))
		}
		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result, ctx.Err()
		case <-time.After(wait):
		}
	}

	result.TotalDuration = time.Since(start)
	retryAttempts.Observe(float64(result.Attempts))
	return result, result.LastError
}

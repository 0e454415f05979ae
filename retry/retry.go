// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

// Option configures Do.
type Option func(*policy)

type policy struct {
	retryable func(error) bool
}

// If retries only errors for which retryable returns true. Other errors are
// returned immediately. Default is to retry every error.
func If(retryable func(error) bool) Option {
	return func(p *policy) {
		if retryable != nil {
			p.retryable = retryable
		}
	}
}

// Do calls operation until it succeeds, maxAttempts is reached, ctx ends or
// the error is not retryable. The delay before retry n is Backoff(baseDelay, n).
//
// Returns the number of attempts made and the error from the last attempt,
// or ctx.Err() if ctx ended before an attempt or during a backoff.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, operation func() error, opts ...Option) (int, error) {
	if maxAttempts <= 0 {
		return 0, ErrInvalidMaxAttempts
	}
	p := policy{retryable: func(error) bool { return true }}
	for _, opt := range opts {
		opt(&p)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		if lastErr = operation(); lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return attempt, nil
		}
		slog.Debug("operation failed", "attempt", attempt, "maxAttempts", maxAttempts, "err", lastErr)

		if attempt == maxAttempts || !p.retryable(lastErr) {
			return attempt, lastErr
		}
		if err := Sleep(ctx, Backoff(baseDelay, attempt)); err != nil {
			return attempt, err
		}
	}
	return maxAttempts, lastErr
}

// Backoff returns the delay after the given failed attempt: base * 2^(attempt-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Sleep waits for d or until ctx ends, returning ctx.Err() in that case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

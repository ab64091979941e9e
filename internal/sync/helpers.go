// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/source"
)

// retryPolicy bounds the retries of one upstream call.
type retryPolicy struct {
	attempts int
	delay    time.Duration
}

// retryWithBackoff executes fn with exponential backoff while it fails with
// an error that retryable accepts. Any other error is returned at once.
// If the context is canceled during a wait, the context error is returned.
func retryWithBackoff(ctx context.Context, p retryPolicy, retryable func(error) bool, fn func() error) error {
	var err error
	delay := p.delay
	attempts := max(p.attempts, 1)

	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}

		if attempt < attempts-1 {
			logging.Ctx(ctx).Warn().Err(err).Int("attempt", attempt+1).Int("max_attempts", attempts).Dur("delay", delay).Msg("Retry attempt")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}

	return fmt.Errorf("max retry attempts reached: %w", err)
}

// transientFetch reports whether a fetch failure is worth repeating: a
// server-side error or a transport failure. Anything else is final.
func transientFetch(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fe *source.FetchError
	if !errors.As(err, &fe) {
		return false
	}
	if fe.StatusCode >= http.StatusInternalServerError {
		return true
	}
	var ue *url.Error
	return fe.StatusCode == 0 && errors.As(err, &ue)
}

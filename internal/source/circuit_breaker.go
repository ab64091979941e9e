// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/metrics"
	"github.com/tomtom215/meterline/internal/models"
)

// Fetcher is the data query used by the sync engine.
type Fetcher interface {
	Fetch(ctx context.Context, reference string, start, end time.Time, token string) (*models.LongTable, error)
}

// CircuitBreakerClient wraps a Fetcher with a circuit breaker so a failing
// upstream is not hammered by every scheduled sync.
//
// Breaker settings:
//   - Max 3 requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens at a 60% failure rate with at least 10 requests
type CircuitBreakerClient struct {
	client Fetcher
	cb     *gobreaker.CircuitBreaker[*models.LongTable]
	name   string
}

// NewCircuitBreakerClient wraps client in a breaker named name.
func NewCircuitBreakerClient(client Fetcher, name string) *CircuitBreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*models.LongTable](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},

		// A cancelled sync says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: name}
}

// Fetch implements Fetcher. A rejected request is reported as a FetchError
// wrapping gobreaker.ErrOpenState or gobreaker.ErrTooManyRequests.
func (cbc *CircuitBreakerClient) Fetch(ctx context.Context, reference string, start, end time.Time, token string) (*models.LongTable, error) {
	table, err := cbc.cb.Execute(func() (*models.LongTable, error) {
		return cbc.client.Fetch(ctx, reference, start, end, token)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Ctx(ctx).Warn().Err(err).Str("breaker", cbc.name).Msg("[CIRCUIT BREAKER] Request rejected")
			return nil, &FetchError{Reference: reference, Err: fmt.Errorf("circuit breaker: %w", err)}
		}
		metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(float64(cbc.cb.Counts().ConsecutiveFailures))
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(0)
	return table, nil
}

// State returns the breaker state.
func (cbc *CircuitBreakerClient) State() gobreaker.State {
	return cbc.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

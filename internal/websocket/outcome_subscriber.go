// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package websocket

import (
	"context"
	"fmt"

	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/models"
)

// OutcomeSource yields sync outcomes until ctx is done.
type OutcomeSource interface {
	Subscribe(ctx context.Context) (<-chan *models.SyncOutcome, error)
}

// OutcomeSubscriber bridges the event bus to the hub so every published
// sync outcome reaches connected clients.
type OutcomeSubscriber struct {
	source OutcomeSource
	hub    *Hub
}

// NewOutcomeSubscriber creates a bridge from source to hub.
func NewOutcomeSubscriber(source OutcomeSource, hub *Hub) *OutcomeSubscriber {
	return &OutcomeSubscriber{source: source, hub: hub}
}

// Serve implements suture.Service. It returns when ctx is done or the
// subscription closes.
func (s *OutcomeSubscriber) Serve(ctx context.Context) error {
	outcomes, err := s.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to sync outcomes: %w", err)
	}
	logging.Info().Str("component", s.String()).Msg("streaming sync outcomes to websocket clients")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case outcome, ok := <-outcomes:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("sync outcome subscription closed")
			}
			s.hub.BroadcastSyncOutcome(outcome)
		}
	}
}

func (s *OutcomeSubscriber) String() string { return "websocket-outcome-subscriber" }

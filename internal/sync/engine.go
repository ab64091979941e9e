// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
engine.go - Incremental sync of one equipment reference

Sync pulls the readings of one reference newer than its watermark and
writes them channel by channel:

 1. Ensure the equipment row exists.
 2. Window: [opts.Start or watermark, opts.End or now].
 3. Authenticate (failure is fatal).
 4. Fetch the window (failure is fatal after transient retries).
 5. Partition by channel; repeated (timestamp, channel) keeps the last reading.
 6. Write each channel in its own transaction. A failed channel is rolled
    back, logged and reported; the other channels still commit.
 7. Report the outcome: success, partial_failure or fatal.

The upstream window is inclusive at both ends, so the row at the watermark
is fetched again and upserted over itself.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/meterline/internal/auth"
	"github.com/tomtom215/meterline/internal/config"
	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/metrics"
	"github.com/tomtom215/meterline/internal/models"
	"github.com/tomtom215/meterline/internal/source"
	"github.com/tomtom215/meterline/internal/timeseries"
)

// Store is the part of the database a sync writes through.
type Store interface {
	EnsureEquipment(ctx context.Context, reference string) (int64, error)
	Watermark(ctx context.Context, reference string) (time.Time, bool, error)
	WriteChannel(ctx context.Context, batch models.ChannelBatch) (int, error)
}

// OutcomePublisher receives every sync outcome. Implemented by
// *events.Bus.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome *models.SyncOutcome) error
}

// SyncOptions overrides the window of one sync. Nil fields fall back to the
// watermark and the current time.
type SyncOptions struct {
	Start *time.Time
	End   *time.Time
}

// ChannelWriteError reports a channel whose transaction was rolled back.
// It never aborts the sync of the other channels.
type ChannelWriteError struct {
	Reference string
	Channel   string
	Err       error
}

func (e *ChannelWriteError) Error() string {
	return fmt.Sprintf("write channel %q of %s: %v", e.Channel, e.Reference, e.Err)
}

func (e *ChannelWriteError) Unwrap() error { return e.Err }

// Engine syncs single references.
type Engine struct {
	store     Store
	auth      auth.Authenticator
	fetcher   source.Fetcher
	publisher OutcomePublisher
	retry     retryPolicy
	now       func() time.Time
}

// NewEngine builds a sync engine. The end of a default window is the
// current wall time in zone, matching the naive timestamps in the store.
func NewEngine(store Store, authenticator auth.Authenticator, fetcher source.Fetcher, zone timeseries.ZonePolicy, cfg *config.SyncConfig) *Engine {
	return &Engine{
		store:   store,
		auth:    authenticator,
		fetcher: fetcher,
		retry:   retryPolicy{attempts: cfg.RetryAttempts, delay: cfg.RetryDelay},
		now:     func() time.Time { return zone.Normalize(time.Now()) },
	}
}

// SetPublisher sets where outcomes are published. Nil disables publishing.
func (e *Engine) SetPublisher(p OutcomePublisher) {
	e.publisher = p
}

// Sync runs one sync of reference. The outcome is always returned; the
// error is non-nil only for a fatal outcome. Channel failures are reported
// in the outcome's FailedChannels.
func (e *Engine) Sync(ctx context.Context, reference string, cfg auth.AuthConfig, opts SyncOptions) (*models.SyncOutcome, error) {
	runID := uuid.NewString()
	ctx = logging.ContextWithCorrelationID(ctx, runID)
	ctx = logging.ContextWithReference(ctx, reference)
	log := logging.Ctx(ctx)

	outcome := &models.SyncOutcome{
		RunID:     runID,
		Reference: reference,
		StartedAt: time.Now(),
	}

	err := e.run(ctx, reference, cfg, opts, outcome)
	outcome.Duration = time.Since(outcome.StartedAt)

	switch {
	case err != nil:
		outcome.Status = models.SyncFatal
		outcome.Error = err.Error()
		log.Error().Err(err).Msg("Sync failed")
	case len(outcome.FailedChannels) > 0:
		outcome.Status = models.SyncPartialFailure
		log.Warn().
			Strs("failed_channels", outcome.FailedChannelNames()).
			Int("values_written", outcome.ValuesWritten).
			Msg("Sync completed with failed channels")
	default:
		outcome.Status = models.SyncSuccess
		log.Info().
			Int("channels", outcome.Channels).
			Int("values_written", outcome.ValuesWritten).
			Time("from", outcome.From).
			Time("to", outcome.To).
			Dur("duration", outcome.Duration).
			Msg("Sync completed")
	}

	metrics.RecordSyncOutcome(string(outcome.Status), outcome.Duration, outcome.ValuesWritten, len(outcome.FailedChannels))
	if e.publisher != nil {
		if pubErr := e.publisher.PublishOutcome(ctx, outcome); pubErr != nil {
			log.Warn().Err(pubErr).Msg("Failed to publish sync outcome")
		}
	}
	return outcome, err
}

func (e *Engine) run(ctx context.Context, reference string, cfg auth.AuthConfig, opts SyncOptions, outcome *models.SyncOutcome) error {
	log := logging.Ctx(ctx)

	if _, err := e.store.EnsureEquipment(ctx, reference); err != nil {
		return fmt.Errorf("ensure equipment: %w", err)
	}

	start, end, err := e.window(ctx, reference, opts)
	if errors.Is(err, errCaughtUp) {
		outcome.From, outcome.To = start, end
		log.Debug().Time("watermark", start).Time("now", end).Msg("Watermark is ahead of the clock, nothing to fetch")
		return nil
	}
	if err != nil {
		return err
	}
	outcome.From, outcome.To = start, end

	token, err := e.auth.Authenticate(ctx, cfg)
	if err != nil {
		return err
	}

	var table *models.LongTable
	err = retryWithBackoff(ctx, e.retry, transientFetch, func() error {
		var fetchErr error
		table, fetchErr = e.fetcher.Fetch(ctx, reference, start, end, token.AccessToken)
		return fetchErr
	})
	if err != nil {
		return err
	}

	batches := models.PartitionByChannel(table.Rows)
	outcome.Channels = len(batches)
	log.Debug().Int("rows", table.Len()).Int("channels", len(batches)).Msg("Fetched readings")

	for _, batch := range batches {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		batch.Equipment = reference

		written, err := e.store.WriteChannel(ctx, batch)
		if err != nil {
			cwErr := &ChannelWriteError{Reference: reference, Channel: batch.Channel, Err: err}
			log.Error().Err(err).Str("channel", batch.Channel).Int("values", len(batch.Values)).Msg("Channel write rolled back")
			outcome.FailedChannels = append(outcome.FailedChannels, models.ChannelFailure{
				Channel: batch.Channel,
				Error:   cwErr.Error(),
			})
			continue
		}
		outcome.ValuesWritten += written
	}
	return nil
}

// window resolves the fetch window. An explicit start wins over the
// watermark. A start after the end is rejected with ErrInvalidWindow when
// either bound was given explicitly. When both come from defaults the
// watermark is ahead of the clock, which happens during the repeated hour of
// a DST fall-back or with future-dated readings, and errCaughtUp is returned.
func (e *Engine) window(ctx context.Context, reference string, opts SyncOptions) (time.Time, time.Time, error) {
	var start, end time.Time
	if opts.Start != nil {
		start = *opts.Start
	} else {
		wm, empty, err := e.store.Watermark(ctx, reference)
		if err != nil {
			return start, end, fmt.Errorf("read watermark: %w", err)
		}
		if empty {
			logging.Ctx(ctx).Info().Time("from", wm).Msg("No stored values, syncing full history")
		}
		start = wm
	}

	if opts.End != nil {
		end = *opts.End
	} else {
		end = e.now()
	}

	if start.After(end) {
		if opts.Start == nil && opts.End == nil {
			return start, end, errCaughtUp
		}
		return start, end, fmt.Errorf("%w: start %s is after end %s", ErrInvalidWindow,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

// ErrInvalidWindow is returned when a sync window ends before it starts.
var ErrInvalidWindow = errors.New("invalid sync window")

// errCaughtUp marks a default window with nothing to fetch yet.
var errCaughtUp = errors.New("watermark ahead of clock")

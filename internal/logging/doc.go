// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

// Package logging is meterline's zerolog-based structured logging layer.
//
// # Setup
//
//	logging.Init(logging.Config{
//	    Level:  "info",    // trace, debug, info, warn, error, fatal, disabled
//	    Format: "json",    // json or console
//	    Caller: false,
//	})
//
// # Usage
//
//	logging.Info().Str("reference", ref).Int("values", n).Msg("Channel committed")
//
// Work that spans one reference carries a correlation ID and the reference
// in its context; Ctx returns a logger with both fields set:
//
//	ctx = logging.ContextWithCorrelationID(ctx, logging.NewCorrelationID())
//	ctx = logging.ContextWithReference(ctx, "EQ-1")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Channel rolled back")
//
// # Adapters
//
//   - NewSlogLogger: slog.Logger for sutureslog supervisor events
//   - NewWatermillAdapter: watermill.LoggerAdapter for the event bus
//
// # Sanitization
//
// SanitizeToken, SanitizeUsername and SanitizeValue mask credentials before
// they reach a log line. EscapeControl neutralizes untrusted input such as
// request errors.
package logging

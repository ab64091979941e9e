// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Package sync replicates upstream readings into the store.

Key Components:

  - Engine: Incremental sync of one reference (engine.go)
  - Manager: Periodic and manual runs over many references with a bounded
    worker pool (manager.go)
  - retryWithBackoff: Exponential backoff for transient fetch failures

Outcomes:

Every sync yields a models.SyncOutcome:

  - success: every channel committed
  - partial_failure: the fetch succeeded but some channels rolled back
  - fatal: authentication or fetch failed, nothing was written

Outcomes are recorded in Prometheus metrics and, when a publisher is set,
published on the event bus.

Usage Example:

	engine := sync.NewEngine(db, authenticator, fetcher, zone, &cfg.Sync)
	engine.SetPublisher(publisher)

	manager := sync.NewManager(engine, db, auth.NewAuthConfig(&cfg.Source), &cfg.Sync)
	if err := manager.Start(ctx); err != nil {
	    return err
	}

	outcome, err := manager.SyncReference(ctx, "EQ-1", sync.SyncOptions{})
*/
package sync

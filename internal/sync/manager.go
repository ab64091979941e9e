// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
manager.go - Sync Manager Lifecycle and Orchestration

Manager runs the Engine over a set of references on a fixed interval and on
demand.

References:
  - sync.references, in configured order
  - plus every stored equipment reference when sync.all_equipment is set

Each reference is synced by one worker of a bounded pool (sync.workers)
with its own handshake (or cached token) and transactions. A fatal outcome
for one reference never stops its siblings.

Lifecycle Methods:
  - NewManager(): Initialize manager with engine, reference source and credentials
  - Start(): Begin periodic sync (and an initial sync when sync.start_on_boot)
  - Stop(): Stop the loop and wait for in-flight syncs
  - TriggerSync(): Manual run over all references (serialized with the loop)
  - SyncReference(): On-demand sync of one reference

Thread Safety:
  - syncMu: Prevents concurrent full runs
  - mu: Protects shared state (running, stopChan, lastSync, callback)
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/meterline/internal/auth"
	"github.com/tomtom215/meterline/internal/config"
	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/models"
)

// ReferenceLister lists every stored equipment reference.
type ReferenceLister interface {
	ListReferences(ctx context.Context) ([]string, error)
}

// Manager orchestrates periodic synchronization of many references.
type Manager struct {
	engine   *Engine
	lister   ReferenceLister
	authCfg  auth.AuthConfig
	cfg      *config.SyncConfig
	lastSync time.Time
	running  bool
	mu       sync.RWMutex
	syncMu   sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup

	onSyncCompleted func(outcomes []*models.SyncOutcome)
}

// NewManager creates a sync manager. lister may be nil when
// sync.all_equipment is off.
func NewManager(engine *Engine, lister ReferenceLister, authCfg auth.AuthConfig, cfg *config.SyncConfig) *Manager {
	logging.Info().
		Dur("interval", cfg.Interval).
		Int("workers", cfg.Workers).
		Int("references", len(cfg.References)).
		Bool("all_equipment", cfg.AllEquipment).
		Msg("Sync manager config loaded")

	return &Manager{
		engine:   engine,
		lister:   lister,
		authCfg: authCfg,
		cfg:     cfg,
	}
}

// SetOnSyncCompleted sets the callback invoked after each full run.
func (m *Manager) SetOnSyncCompleted(callback func(outcomes []*models.SyncOutcome)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSyncCompleted = callback
}

// Start begins the periodic synchronization process. A stopped manager can
// be started again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is already running")
	}
	m.running = true
	stop := make(chan struct{})
	m.stopChan = stop
	m.mu.Unlock()

	logging.Info().Msg("Starting sync manager...")

	// Add before starting so Stop never waits on a partial count.
	if m.cfg.StartOnBoot {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if _, err := m.TriggerSync(ctx); err != nil {
				logging.Warn().Err(err).Msg("Initial sync failed (will retry)")
			}
		}()
	}

	m.wg.Add(1)
	go m.syncLoop(ctx, stop)
	return nil
}

// Stop gracefully stops the synchronization process.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is not running")
	}
	m.running = false
	stop := m.stopChan
	m.mu.Unlock()

	logging.Info().Msg("Stopping sync manager...")
	close(stop)
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
	return nil
}

// LastSyncTime returns the completion time of the last run in which at
// least one reference did not fail fatally.
func (m *Manager) LastSyncTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSync
}

func (m *Manager) syncLoop(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := m.TriggerSync(ctx); err != nil {
				logging.Error().Err(err).Msg("Sync failed")
			}
		}
	}
}

// TriggerSync runs one sync of every reference. Runs are serialized. The
// error reports only a failure to list references; per-reference failures
// are in the outcomes.
func (m *Manager) TriggerSync(ctx context.Context) ([]*models.SyncOutcome, error) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	refs, err := m.references(ctx)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		logging.Ctx(ctx).Info().Msg("No references to sync")
		return nil, nil
	}

	outcomes := m.SyncReferences(ctx, refs)

	m.mu.Lock()
	for _, o := range outcomes {
		if o.Status != models.SyncFatal {
			m.lastSync = time.Now()
			break
		}
	}
	callback := m.onSyncCompleted
	m.mu.Unlock()

	if callback != nil {
		callback(outcomes)
	}
	return outcomes, nil
}

// SyncReferences syncs refs with at most sync.workers in flight and returns
// one outcome per reference, in input order.
func (m *Manager) SyncReferences(ctx context.Context, refs []string) []*models.SyncOutcome {
	outcomes := make([]*models.SyncOutcome, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(m.cfg.Workers, 1))
	for i, ref := range refs {
		g.Go(func() error {
			// Fatal errors are part of the outcome and must not cancel siblings.
			outcomes[i], _ = m.engine.Sync(gctx, ref, m.authCfg, SyncOptions{})
			return nil
		})
	}
	_ = g.Wait()

	var failed, partial int
	for _, o := range outcomes {
		switch o.Status {
		case models.SyncFatal:
			failed++
		case models.SyncPartialFailure:
			partial++
		}
	}
	logging.Ctx(ctx).Info().
		Int("references", len(refs)).
		Int("fatal", failed).
		Int("partial", partial).
		Msg("Sync run finished")
	return outcomes
}

// SyncReference runs an on-demand sync of one reference with an optional
// window override.
func (m *Manager) SyncReference(ctx context.Context, reference string, opts SyncOptions) (*models.SyncOutcome, error) {
	return m.engine.Sync(ctx, reference, m.authCfg, opts)
}

// references returns the configured references followed by the stored
// ones, without duplicates.
func (m *Manager) references(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var refs []string
	add := func(ref string) {
		if _, ok := seen[ref]; ok || ref == "" {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	for _, ref := range m.cfg.References {
		add(ref)
	}
	if m.cfg.AllEquipment && m.lister != nil {
		stored, err := m.lister.ListReferences(ctx)
		if err != nil {
			return nil, fmt.Errorf("list equipment references: %w", err)
		}
		for _, ref := range stored {
			add(ref)
		}
	}
	return refs, nil
}

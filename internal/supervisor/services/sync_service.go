// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package services

import (
	"context"
	"fmt"
)

// StartStopManager is satisfied by *sync.Manager.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// SyncService adapts the scheduled sync manager to suture. Serve starts the
// scheduler, blocks until ctx is done and then waits for in-flight runs.
type SyncService struct {
	manager StartStopManager
}

func NewSyncService(manager StartStopManager) *SyncService {
	return &SyncService{manager: manager}
}

func (s *SyncService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("sync manager start failed: %w", err)
	}
	<-ctx.Done()
	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("sync manager stop failed: %w", err)
	}
	return ctx.Err()
}

func (s *SyncService) String() string { return "sync-manager" }

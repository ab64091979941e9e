// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package api

import (
	"context"
	"time"

	"github.com/tomtom215/meterline/internal/cache"
	"github.com/tomtom215/meterline/internal/database"
	"github.com/tomtom215/meterline/internal/graph"
	"github.com/tomtom215/meterline/internal/models"
	"github.com/tomtom215/meterline/internal/sync"
	"github.com/tomtom215/meterline/internal/timeseries"
)

// Version is reported by the health endpoint. Overridden at link time.
var Version = "dev"

// Store is the read side of the database.
type Store interface {
	Ping(ctx context.Context) error
	GetRecordCounts(ctx context.Context) (database.RecordCounts, error)
	ListEquipment(ctx context.Context) ([]models.Equipment, error)
	GetEquipment(ctx context.Context, reference string) (*models.Equipment, error)
	ListDataStreams(ctx context.Context, reference string) ([]models.DataStream, error)
	GetEquipmentData(ctx context.Context, reference string, from, to *time.Time) ([]models.Reading, error)
	Watermark(ctx context.Context, reference string) (time.Time, bool, error)
	LoadGraph(ctx context.Context) ([]models.Equipment, []models.EquipmentConnection, error)
}

// Syncer runs on-demand syncs. Satisfied by *sync.Manager.
type Syncer interface {
	SyncReference(ctx context.Context, reference string, opts sync.SyncOptions) (*models.SyncOutcome, error)
	LastSyncTime() time.Time
}

// ClientCounter reports connected websocket clients. Satisfied by
// *websocket.Hub.
type ClientCounter interface {
	GetClientCount() int
}

// Handler serves the read API.
type Handler struct {
	store     Store
	syncer    Syncer
	clients   ClientCounter
	zone      timeseries.ZonePolicy
	markers   []string
	startTime time.Time
	now       func() time.Time

	graphs *cache.Cache[*graph.Graph]
	tables *cache.Cache[models.WideTable]
}

const (
	graphCacheTTL = time.Minute
	tableCacheTTL = 30 * time.Second
)

// NewHandler creates a read API handler. syncer and clients may be nil:
// on-demand sync then answers 503 and the client count is 0.
func NewHandler(store Store, syncer Syncer, clients ClientCounter, zone timeseries.ZonePolicy, stateMarkers []string) *Handler {
	return &Handler{
		store:     store,
		syncer:    syncer,
		clients:   clients,
		zone:      zone,
		markers:   stateMarkers,
		startTime: time.Now(),
		now:       time.Now,
		graphs:    cache.New[*graph.Graph](graphCacheTTL),
		tables:    cache.New[models.WideTable](tableCacheTTL),
	}
}

// InvalidateCache drops cached graphs and data tables. Wire it to the sync
// manager's completion callback.
func (h *Handler) InvalidateCache() {
	h.graphs.Clear()
	h.tables.Clear()
}

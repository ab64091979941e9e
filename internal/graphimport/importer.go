// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package graphimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tomtom215/meterline/internal/database"
	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/metrics"
	"github.com/tomtom215/meterline/internal/models"
)

// ErrImportRunning is returned when an import is started while another one
// is in progress.
var ErrImportRunning = errors.New("import already in progress")

// Store is the part of the database the importer writes through.
type Store interface {
	ImportGraph(ctx context.Context, in database.GraphImport) (database.GraphImportResult, error)
}

// Importer loads bulk extracts into the equipment graph.
type Importer struct {
	store  Store
	format ExtractFormat

	mu      sync.RWMutex
	running bool
	stats   *ImportStats
}

// NewImporter creates an importer for extracts in the given format.
func NewImporter(store Store, format ExtractFormat) *Importer {
	return &Importer{store: store, format: format}
}

// ImportFile opens path and imports it.
func (i *Importer) ImportFile(ctx context.Context, path string) (*ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open extract: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Str("path", path).Msg("Error closing extract")
		}
	}()
	return i.Import(ctx, f)
}

// Import parses the extract and writes it to the store:
//
//  1. Parse and derive parents. An ambiguous parent fails here, before any write.
//  2. Insert new equipment; existing references keep their name.
//  3. Set parent pointers in bulk, keyed by reference. Rows no longer
//     claimed by a parent have their parent cleared.
//  4. Resolve attachment endpoints and insert the resolved pairs.
//
// Steps 2 to 4 share one transaction.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportStats, error) {
	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		return nil, ErrImportRunning
	}
	i.running = true
	stats := &ImportStats{StartTime: time.Now()}
	i.stats = stats
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.running = false
		stats.EndTime = time.Now()
		i.mu.Unlock()
	}()

	log := logging.Ctx(ctx)

	rows, err := ParseExtract(r, i.format)
	if err != nil {
		return stats, err
	}
	i.mu.Lock()
	stats.Rows = len(rows)
	i.mu.Unlock()

	parents, err := DeriveParents(rows)
	if err != nil {
		return stats, err
	}

	log.Info().Int("rows", len(rows)).Int("parent_links", len(parents)).Msg("Starting equipment import")

	var skipped []SkippedUnresolvedReference
	result, err := i.store.ImportGraph(ctx, database.GraphImport{
		Equipment: equipmentOf(rows),
		Parents:   ParentLinks(rows, parents),
		Endpoints: Endpoints(rows),
		Connect: func(ids map[string]int64) []models.EquipmentConnection {
			// May run more than once if the transaction is retried.
			skipped = skipped[:0]
			var pairs []models.EquipmentConnection
			resolve := func(ref string) (int64, bool) {
				id, ok := ids[ref]
				return id, ok
			}
			for _, res := range DeriveAttachments(rows, resolve) {
				switch v := res.(type) {
				case Resolved:
					pairs = append(pairs, v.Connection)
				case SkippedUnresolvedReference:
					skipped = append(skipped, v)
				}
			}
			return pairs
		},
	})
	if err != nil {
		return stats, fmt.Errorf("import equipment graph: %w", err)
	}

	for _, s := range skipped {
		log.Debug().
			Int("line", s.Line).
			Str("equipment", s.Equipment).
			Str("attached", s.Attached).
			Strs("missing", s.Missing).
			Msg("Skipping attachment with unresolved reference")
	}

	i.mu.Lock()
	stats.EquipmentInserted = result.EquipmentInserted
	stats.ParentsSet = result.ParentsSet
	stats.ParentsCleared = result.ParentsCleared
	stats.ConnectionsInserted = result.ConnectionsInserted
	stats.SkippedAttachments = len(skipped)
	i.mu.Unlock()
	metrics.RecordImport(stats.Rows, stats.SkippedAttachments)

	log.Info().
		Int("equipment_inserted", stats.EquipmentInserted).
		Int("parents_set", stats.ParentsSet).
		Int("parents_cleared", stats.ParentsCleared).
		Int("connections_inserted", stats.ConnectionsInserted).
		Int("skipped_attachments", stats.SkippedAttachments).
		Dur("duration", time.Since(stats.StartTime)).
		Msg("Equipment import completed")

	return stats, nil
}

// GetStats returns a copy of the stats of the last import, or nil.
func (i *Importer) GetStats() *ImportStats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.stats == nil {
		return nil
	}
	cp := *i.stats
	return &cp
}

// IsRunning reports whether an import is in progress.
func (i *Importer) IsRunning() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.running
}

// equipmentOf returns one record per reference. The first non-empty name
// in the extract wins.
func equipmentOf(rows []ExtractRow) []models.Equipment {
	index := make(map[string]int, len(rows))
	out := make([]models.Equipment, 0, len(rows))
	for _, r := range rows {
		if i, ok := index[r.Reference]; ok {
			if out[i].Name == "" {
				out[i].Name = r.Name
			}
			continue
		}
		index[r.Reference] = len(out)
		out = append(out, models.Equipment{Reference: r.Reference, Name: r.Name})
	}
	return out
}

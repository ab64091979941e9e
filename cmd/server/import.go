// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/meterline/internal/config"
	"github.com/tomtom215/meterline/internal/database"
	"github.com/tomtom215/meterline/internal/graphimport"
	"github.com/tomtom215/meterline/internal/logging"
)

// runImport loads one equipment extract and exits.
func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file")
	file := fs.String("file", "", "extract to import (overrides import.file)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	initLogging(cfg)

	path := cfg.Import.File
	if *file != "" {
		path = *file
	}
	if path == "" {
		return errors.New("no extract given: set -file or import.file")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	importer := graphimport.NewImporter(db, graphimport.FormatFromConfig(&cfg.Import))
	stats, err := importer.ImportFile(ctx, path)
	if err != nil {
		return err
	}

	logging.Info().
		Str("file", path).
		Int("rows", stats.Rows).
		Int("equipment_inserted", stats.EquipmentInserted).
		Int("parents_set", stats.ParentsSet).
		Int("parents_cleared", stats.ParentsCleared).
		Int("connections_inserted", stats.ConnectionsInserted).
		Int("skipped_attachments", stats.SkippedAttachments).
		Msg("Equipment extract imported")
	return nil
}

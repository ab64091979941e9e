// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Package supervisor runs meterline's long-lived services under a suture v4
supervisor tree.

# Layout

	meterline
	├── sync-layer
	│   └── sync-manager
	├── messaging-layer
	│   ├── websocket-hub
	│   ├── websocket-outcome-subscriber
	│   └── event-bus
	└── api-layer
	    └── http-server

A service that returns is restarted by its layer. Once a layer crosses
FailureThreshold it backs off for FailureBackoff before the next restart;
the other layers are not affected. Supervisor events are logged through
sutureslog.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddSyncService(services.NewSyncService(manager))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}
*/
package supervisor

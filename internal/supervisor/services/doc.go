// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Package services adapts meterline components to suture.Service.

Each wrapper turns a component lifecycle into Serve(ctx) error:

  - HTTPServerService: ListenAndServe plus Shutdown with a drain timeout
  - SyncService: sync.Manager Start and Stop
  - WebSocketHubService: websocket.Hub RunWithContext
  - BusCloserService: closes the event bus when the messaging layer stops

The wrappers depend on small interfaces instead of the concrete packages,
so the supervisor never imports sync, websocket or events.

Usage:

	tree.AddSyncService(services.NewSyncService(manager))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewBusCloserService(bus))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
*/
package services

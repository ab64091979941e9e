// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Package websocket streams sync outcomes to connected clients.

Key Components:

  - Hub: Tracks clients and fans messages out to them
  - Client: One connection with a read pump and a write pump
  - Handler: HTTP upgrade endpoint with an Origin allowlist
  - OutcomeSubscriber: Relays outcomes from the event bus to the hub

Message Types:

  - sync_outcome: a models.SyncOutcome, one per synced reference
  - ping / pong: application keepalive initiated by the client

Every frame is a JSON object {"type": ..., "data": ...}.

Delivery:

Broadcasts are best effort. A client whose send buffer is full is dropped
and must reconnect. Clients are served in connection order.

Usage Example:

	hub := websocket.NewHub()
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(websocket.NewOutcomeSubscriber(bus, hub))
	router.Handle("/api/v1/ws", websocket.NewHandler(hub, cfg.Server.CORSOrigins))
*/
package websocket

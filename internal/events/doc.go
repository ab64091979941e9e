// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
Package events carries sync outcomes from the sync engine to their
consumers over Watermill.

Backends (events.backend):

  - gochannel: in-process pub/sub, the default for single-instance runs
  - nats: NATS core subjects through watermill-nats. With an empty
    events.nats_url an embedded nats-server is started on a random
    loopback port.

Messages carry the JSON-encoded models.SyncOutcome; the run id is the
message UUID and the reference and status are set as metadata.

	bus, err := events.New(&cfg.Events)
	engine.SetPublisher(bus)
	go events.NewForwarder(bus, hub).Serve(ctx)
*/
package events

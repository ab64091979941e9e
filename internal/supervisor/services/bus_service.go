// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package services

import (
	"context"
	"sync"
)

// Closer is satisfied by *events.Bus.
type Closer interface {
	Close() error
}

// BusCloserService ties the event bus lifetime to the messaging layer. It
// holds no goroutines of its own: Serve blocks until ctx is done and then
// closes the bus, which also stops an embedded NATS server. The bus is
// closed once; a restart after that only waits for cancellation.
type BusCloserService struct {
	bus  Closer
	once sync.Once
}

func NewBusCloserService(bus Closer) *BusCloserService {
	return &BusCloserService{bus: bus}
}

func (b *BusCloserService) Serve(ctx context.Context) error {
	<-ctx.Done()
	var err error
	b.once.Do(func() { err = b.bus.Close() })
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (b *BusCloserService) String() string { return "event-bus" }

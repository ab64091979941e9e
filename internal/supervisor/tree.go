// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Layer names the child supervisors of the tree.
type Layer string

const (
	LayerSync      Layer = "sync-layer"
	LayerMessaging Layer = "messaging-layer"
	LayerAPI       Layer = "api-layer"
)

// TreeConfig holds the restart policy shared by every supervisor in the tree.
type TreeConfig struct {
	// FailureThreshold is the number of failures before backing off.
	FailureThreshold float64
	// FailureDecay is the failure half-life in seconds.
	FailureDecay float64
	// FailureBackoff is how long a supervisor waits once over the threshold.
	FailureBackoff time.Duration
	// ShutdownTimeout bounds how long a service may take to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec() suture.Spec {
	return suture.Spec{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// SupervisorTree runs every long-lived service of the process.
//
//   - sync: the scheduled sync manager
//   - messaging: the WebSocket hub and the outcome subscriber feeding it
//   - api: the HTTP server
//
// A service that keeps crashing backs off inside its own layer; the other
// layers keep running.
type SupervisorTree struct {
	root   *suture.Supervisor
	layers map[Layer]*suture.Supervisor
	logger *slog.Logger
	config TreeConfig
}

// NewSupervisorTree builds the root supervisor and its three layers.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()

	// MustHook has a pointer receiver.
	rootSpec := config.spec()
	rootSpec.EventHook = (&sutureslog.Handler{Logger: logger}).MustHook()

	t := &SupervisorTree{
		root:   suture.New("meterline", rootSpec),
		layers: make(map[Layer]*suture.Supervisor, 3),
		logger: logger,
		config: config,
	}
	for _, name := range []Layer{LayerSync, LayerMessaging, LayerAPI} {
		layer := suture.New(string(name), config.spec())
		t.root.Add(layer)
		t.layers[name] = layer
	}
	return t, nil
}

// Root returns the root supervisor.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// Add places svc under the named layer.
func (t *SupervisorTree) Add(layer Layer, svc suture.Service) suture.ServiceToken {
	return t.layers[layer].Add(svc)
}

// AddSyncService adds the sync manager or another scheduled job.
func (t *SupervisorTree) AddSyncService(svc suture.Service) suture.ServiceToken {
	return t.Add(LayerSync, svc)
}

// AddMessagingService adds the hub and event subscribers.
func (t *SupervisorTree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.Add(LayerMessaging, svc)
}

// AddAPIService adds the HTTP server.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.Add(LayerAPI, svc)
}

// RemoveAndWait stops a service added to layer and waits up to timeout.
func (t *SupervisorTree) RemoveAndWait(layer Layer, token suture.ServiceToken, timeout time.Duration) error {
	return t.layers[layer].RemoveAndWait(token, timeout)
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel yields the
// result once the tree stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that ignored the shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

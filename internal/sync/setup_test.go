// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tomtom215/meterline/internal/auth"
	"github.com/tomtom215/meterline/internal/config"
	"github.com/tomtom215/meterline/internal/models"
	"github.com/tomtom215/meterline/internal/timeseries"
)

// newTestConfig returns sync settings with fast retries.
func newTestConfig() *config.SyncConfig {
	return &config.SyncConfig{
		Enabled:       true,
		Interval:      time.Hour,
		Workers:       2,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}
}

func utcZone(t *testing.T) timeseries.ZonePolicy {
	t.Helper()
	zone, err := timeseries.NewZonePolicy("UTC", "", "")
	require.NoError(t, err)
	return zone
}

func testAuthConfig() auth.AuthConfig {
	return auth.AuthConfig{User: "user", Password: "secret", RootURL: "http://upstream.test", TenantURL: "http://tenant.test/"}
}

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

type stubAuthenticator struct {
	token string
	err   error
	calls atomic.Int32
}

func (s *stubAuthenticator) Authenticate(_ context.Context, _ auth.AuthConfig) (auth.Token, error) {
	s.calls.Add(1)
	if s.err != nil {
		return auth.Token{}, s.err
	}
	return auth.Token{AccessToken: s.token}, nil
}

type stubFetcher struct {
	mu       sync.Mutex
	tables   map[string]*models.LongTable
	failRefs map[string]error
	errs     []error
	calls    int
	starts   []time.Time
}

func (s *stubFetcher) Fetch(_ context.Context, reference string, start, _ time.Time, _ string) (*models.LongTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.starts = append(s.starts, start)
	if err, ok := s.failRefs[reference]; ok {
		return nil, err
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if t, ok := s.tables[reference]; ok {
		return t, nil
	}
	return &models.LongTable{}, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	outcomes []*models.SyncOutcome
}

func (p *recordingPublisher) PublishOutcome(_ context.Context, o *models.SyncOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, o)
	return nil
}

func (p *recordingPublisher) all() []*models.SyncOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.SyncOutcome(nil), p.outcomes...)
}

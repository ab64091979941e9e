// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks tag constraints on every section plus the cross-field
// rules tags cannot express.
func (c *Config) Validate() error {
	sections := []struct {
		name  string
		value interface{}
		skip  bool
	}{
		// Credentials are only needed when this process talks to the source.
		{"source", &c.Source, !c.Sync.Enabled},
		{"auth", &c.Auth, false},
		{"database", &c.Database, false},
		{"sync", &c.Sync, !c.Sync.Enabled},
		{"import", &c.Import, false},
		{"events", &c.Events, false},
		{"server", &c.Server, !c.Server.Enabled},
		{"logging", &c.Logging, false},
	}
	for _, s := range sections {
		if s.skip {
			continue
		}
		if err := structValidator().Struct(s.value); err != nil {
			return fmt.Errorf("%s: %w", s.name, describeValidation(err))
		}
	}

	validators := []func() error{
		c.validateSource,
		c.validateAuth,
		c.validateEvents,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateSource() error {
	if !c.Sync.Enabled {
		return nil
	}
	if err := validateHTTPURL(c.Source.RootURL, "SOURCE_ROOT_URL"); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Source.Timezone); err != nil {
		return fmt.Errorf("SOURCE_TIMEZONE %q is not a known IANA zone: %w", c.Source.Timezone, err)
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.TokenCache == "badger" && c.Auth.TokenCachePath == "" {
		return fmt.Errorf("AUTH_TOKEN_CACHE_PATH is required when AUTH_TOKEN_CACHE=badger")
	}
	if c.Auth.TokenCache == "badger" && len(c.Auth.TokenCacheSecret) < 16 {
		return fmt.Errorf("AUTH_TOKEN_CACHE_SECRET of at least 16 characters is required when AUTH_TOKEN_CACHE=badger")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.Backend != "nats" {
		return nil
	}
	return validateNATSURL(c.Events.NATSURL)
}

// describeValidation flattens validator field errors into one readable line.
func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

// Package auth obtains bearer tokens for the upstream data API.
//
// The upstream runs an OIDC authorization server that only offers the
// interactive authorization-code flow, so the client plays the browser:
//
//  1. GET the authorize endpoint with a PKCE challenge, keep the session
//     cookie and the hidden login form fields.
//  2. POST the credentials to the login form.
//  3. Follow the redirect chain until a Location carries the code.
//  4. Exchange the code and the PKCE verifier for an access token.
//
// Every handshake runs under its own deadline and cookie jar. Tokens can be
// reused across syncs through a TokenCache keyed by the config fingerprint.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/meterline/internal/config"
)

// Defaults of the upstream tenant.
const (
	DefaultClientID  = "Frontend"
	DefaultScope     = "Web.Api.Display Web.Api.User offline_access openid"
	DefaultLoginPath = "/auth/Account/Login"
)

// AuthConfig is everything one handshake needs. It is passed explicitly to
// every sync; nothing is read from the environment at call time.
type AuthConfig struct {
	User      string
	Password  string
	RootURL   string
	TenantURL string
	TokenURL  string
	AuthURL   string
	LoginPath string
	ClientID  string
	Scope     string
}

// NewAuthConfig builds an AuthConfig from the source settings, filling the
// tenant defaults for empty fields.
func NewAuthConfig(src *config.SourceConfig) AuthConfig {
	cfg := AuthConfig{
		User:      src.User,
		Password:  src.Password,
		RootURL:   src.RootURL,
		TenantURL: src.TenantURL,
		TokenURL:  src.TokenURL,
		AuthURL:   src.AuthURL,
		LoginPath: src.LoginPath,
		ClientID:  src.ClientID,
		Scope:     src.Scope,
	}
	return cfg.withDefaults()
}

func (c AuthConfig) withDefaults() AuthConfig {
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.Scope == "" {
		c.Scope = DefaultScope
	}
	return c
}

// Token is a bearer token and, when known, the instant it stops working.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidAt reports whether the token is still usable at now with skew to
// spare. A token without a known expiry is never considered valid here.
func (t Token) ValidAt(now time.Time, skew time.Duration) bool {
	if t.AccessToken == "" || t.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(skew).Before(t.ExpiresAt)
}

// Authenticator produces a bearer token for a config.
type Authenticator interface {
	Authenticate(ctx context.Context, cfg AuthConfig) (Token, error)
}

// Handshake steps reported in AuthenticationError.
const (
	StepPKCE      = "pkce"
	StepAuthorize = "authorize"
	StepLogin     = "login"
	StepRedirect  = "redirect"
	StepToken     = "token"
)

var (
	// ErrMissingCookie means the authorize response set no cookie.
	ErrMissingCookie = errors.New("no session cookie in authorize response")
	// ErrMissingFormField means a hidden login form input was not found.
	ErrMissingFormField = errors.New("login form field not found")
	// ErrMissingRedirect means the login response did not redirect.
	ErrMissingRedirect = errors.New("no redirect after login")
	// ErrMissingCode means no redirect carried an authorization code.
	ErrMissingCode = errors.New("authorization code not found in redirect")
	// ErrMissingAccessToken means the token response had no access_token.
	ErrMissingAccessToken = errors.New("access_token missing from token response")
	// ErrTooManyRedirects means the redirect chain exceeded maxRedirects.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// AuthenticationError is returned for any failed handshake. It is fatal to
// the sync attempt and is not retried by this package.
type AuthenticationError struct {
	Step       string
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed at %s (HTTP %d): %v", e.Step, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed at %s: %v", e.Step, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

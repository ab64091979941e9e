// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/net/publicsuffix"

	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/metrics"
)

const (
	// maxRedirects bounds the post-login redirect chain.
	maxRedirects = 10
	// maxPageSize bounds the authorize page and token response bodies.
	maxPageSize = 1 << 20
	// maxErrorBodySize bounds error snippets attached to failures.
	maxErrorBodySize = 512
)

// PKCEAuthenticator performs the scripted browser login against the
// upstream authorization server.
type PKCEAuthenticator struct {
	transport http.RoundTripper
	timeout   time.Duration
	now       func() time.Time
}

// NewPKCEAuthenticator creates an authenticator whose whole handshake is
// bounded by timeout. A zero timeout relies on the caller's context.
func NewPKCEAuthenticator(timeout time.Duration) *PKCEAuthenticator {
	return &PKCEAuthenticator{
		transport: http.DefaultTransport,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Authenticate runs one complete handshake and returns the bearer token.
// Any failure is an *AuthenticationError.
func (a *PKCEAuthenticator) Authenticate(ctx context.Context, cfg AuthConfig) (tok Token, err error) {
	defer func() { metrics.RecordAuthHandshake(err) }()

	cfg = cfg.withDefaults()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	log := logging.Ctx(ctx).With().Str("user", logging.SanitizeUsername(cfg.User)).Logger()

	pkce, err := NewPKCE()
	if err != nil {
		return Token{}, &AuthenticationError{Step: StepPKCE, Err: err}
	}

	// One jar per handshake: concurrent syncs never share a login session.
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return Token{}, &AuthenticationError{Step: StepAuthorize, Err: err}
	}
	client := &http.Client{
		Transport: a.transport,
		Jar:       jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	form, err := a.authorize(ctx, client, cfg, pkce)
	if err != nil {
		return Token{}, err
	}
	log.Debug().Msg("Authorize page loaded")

	code, err := a.login(ctx, client, cfg, form)
	if err != nil {
		return Token{}, err
	}
	log.Debug().Msg("Authorization code received")

	tok, err = a.exchange(ctx, client, cfg, pkce, code)
	if err != nil {
		return Token{}, err
	}
	log.Debug().
		Str("token", logging.SanitizeToken(tok.AccessToken)).
		Time("expires_at", tok.ExpiresAt).
		Msg("Bearer token issued")
	return tok, nil
}

// authorize loads the authorize endpoint and returns the hidden login
// form inputs. The session cookie lands in the client jar.
func (a *PKCEAuthenticator) authorize(ctx context.Context, client *http.Client, cfg AuthConfig, pkce PKCE) (loginForm, error) {
	params := url.Values{}
	params.Set("client_id", cfg.ClientID)
	params.Set("redirect_uri", cfg.TenantURL)
	params.Set("response_type", "code")
	params.Set("scope", cfg.Scope)
	params.Set("code_challenge", pkce.Challenge)
	params.Set("code_challenge_method", string(pkce.Method))
	params.Set("acr_values", "tenant:"+cfg.TenantURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.RootURL+cfg.AuthURL+"?"+params.Encode(), nil)
	if err != nil {
		return loginForm{}, &AuthenticationError{Step: StepAuthorize, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return loginForm{}, &AuthenticationError{Step: StepAuthorize, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return loginForm{}, &AuthenticationError{
			Step:       StepAuthorize,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", readBodyForError(resp.Body)),
		}
	}
	if len(resp.Cookies()) == 0 {
		return loginForm{}, &AuthenticationError{Step: StepAuthorize, Err: ErrMissingCookie}
	}

	form, err := parseLoginForm(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return loginForm{}, &AuthenticationError{Step: StepAuthorize, Err: err}
	}
	return form, nil
}

// login posts the credentials and walks the redirect chain until a
// Location carries the authorization code.
func (a *PKCEAuthenticator) login(ctx context.Context, client *http.Client, cfg AuthConfig, form loginForm) (string, error) {
	body := url.Values{}
	body.Set("Origin", cfg.TenantURL)
	body.Set("Tenant", cfg.TenantURL)
	body.Set("ReturnUrl", form.ReturnURL)
	body.Set("username", cfg.User)
	body.Set("password", cfg.Password)
	body.Set(fieldVerificationToken, form.VerificationToken)

	loginURL := cfg.RootURL + cfg.LoginPath + "?ReturnUrl=" + escapeAll(form.ReturnURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(body.Encode()))
	if err != nil {
		return "", &AuthenticationError{Step: StepLogin, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", &AuthenticationError{Step: StepLogin, Err: err}
	}

	lastLocation := ""
	for hops := 0; isRedirect(resp.StatusCode); hops++ {
		location := resp.Header.Get("Location")
		drainAndClose(resp)
		if location == "" {
			break
		}
		if hops >= maxRedirects {
			return "", &AuthenticationError{Step: StepRedirect, Err: ErrTooManyRedirects}
		}
		lastLocation = location

		if code := codeFromLocation(location); code != "" {
			return code, nil
		}

		next, err := resp.Request.URL.Parse(location)
		if err != nil {
			return "", &AuthenticationError{Step: StepRedirect, Err: fmt.Errorf("bad Location %q: %w", location, err)}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next.String(), nil)
		if err != nil {
			return "", &AuthenticationError{Step: StepRedirect, Err: err}
		}
		resp, err = client.Do(req)
		if err != nil {
			return "", &AuthenticationError{Step: StepRedirect, Err: err}
		}
	}

	if lastLocation == "" {
		// A login page rendered again (200) usually means rejected credentials.
		status := resp.StatusCode
		drainAndClose(resp)
		return "", &AuthenticationError{Step: StepLogin, StatusCode: status, Err: ErrMissingRedirect}
	}
	drainAndClose(resp)
	return "", &AuthenticationError{Step: StepRedirect, Err: ErrMissingCode}
}

// exchange trades the authorization code and verifier for a token.
func (a *PKCEAuthenticator) exchange(ctx context.Context, client *http.Client, cfg AuthConfig, pkce PKCE, code string) (Token, error) {
	body := url.Values{}
	body.Set("grant_type", string(oidc.GrantTypeCode))
	body.Set("client_id", cfg.ClientID)
	body.Set("redirect_uri", cfg.TenantURL)
	body.Set("code", code)
	body.Set("code_verifier", pkce.Verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.RootURL+cfg.TokenURL, strings.NewReader(body.Encode()))
	if err != nil {
		return Token{}, &AuthenticationError{Step: StepToken, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Token{}, &AuthenticationError{Step: StepToken, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Token{}, &AuthenticationError{
			Step:       StepToken,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", readBodyForError(resp.Body)),
		}
	}

	var tokenResp oidc.AccessTokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageSize)).Decode(&tokenResp); err != nil {
		return Token{}, &AuthenticationError{Step: StepToken, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tokenResp.AccessToken == "" {
		return Token{}, &AuthenticationError{Step: StepToken, Err: ErrMissingAccessToken}
	}

	expiresIn := time.Duration(tokenResp.ExpiresIn) * time.Second
	return Token{
		AccessToken: tokenResp.AccessToken,
		ExpiresAt:   tokenExpiry(tokenResp.AccessToken, expiresIn, a.now()),
	}, nil
}

// tokenExpiry prefers expires_in, then the exp claim of a JWT access
// token. The signature is not checked: the claim only drives reuse, and
// the upstream rejects a stale token regardless. Zero means unknown.
func tokenExpiry(accessToken string, expiresIn time.Duration, now time.Time) time.Time {
	if expiresIn > 0 {
		return now.Add(expiresIn)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// codeFromLocation reads the code parameter from the raw query of a
// redirect target.
func codeFromLocation(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return ""
	}
	return values.Get("code")
}

// escapeAll percent-encodes every reserved character, including '/',
// and encodes spaces as %20.
func escapeAll(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageSize))
	_ = resp.Body.Close()
}

// readBodyForError reads a bounded snippet of an error response body.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}

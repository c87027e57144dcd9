package gh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultWebURL is the GitHub host that serves the OAuth endpoints.
	DefaultWebURL = "https://github.com"

	deviceCodePath  = "/login/device/code"
	tokenPath       = "/login/oauth/access_token"
	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	// pollGrace is added to every polling interval.
	pollGrace = time.Second

	defaultInterval = 5 * time.Second
	defaultExpiry   = 15 * time.Minute
	slowDownStep    = 5 * time.Second
)

// Token endpoint error codes defined by RFC 8628.
const (
	errAuthorizationPending = "authorization_pending"
	errSlowDown             = "slow_down"
	errExpiredToken         = "expired_token"
	errAccessDenied         = "access_denied"
)

// DeviceCode is the result of a device authorization request.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Interval        time.Duration
	ExpiresAt       time.Time
}

// Clock abstracts time for the polling loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// AuthenticatorConfig configures an Authenticator.
type AuthenticatorConfig struct {
	ClientID string
	Scopes   []string

	// WebURL is the GitHub host serving /login/device/code and
	// /login/oauth/access_token. Defaults to DefaultWebURL.
	WebURL string

	HTTPClient *http.Client
	Clock      Clock
	Logger     *slog.Logger
}

// Authenticator runs the OAuth device authorization flow against GitHub. At
// most one Flow is active at a time.
type Authenticator struct {
	oauth      oauth2.Config
	tokenURL   string
	httpClient *http.Client
	clock      Clock
	log        *slog.Logger

	mu      sync.Mutex
	current *Flow
}

// NewAuthenticator validates cfg and returns an Authenticator.
func NewAuthenticator(cfg AuthenticatorConfig) (*Authenticator, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, fmt.Errorf("github client id is required")
	}

	webURL := strings.TrimRight(strings.TrimSpace(cfg.WebURL), "/")
	if webURL == "" {
		webURL = DefaultWebURL
	}
	if parsed, err := url.Parse(webURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid github url %q", cfg.WebURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	return &Authenticator{
		oauth: oauth2.Config{
			ClientID: clientID,
			Scopes:   cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				DeviceAuthURL: webURL + deviceCodePath,
				TokenURL:      webURL + tokenPath,
			},
		},
		tokenURL:   webURL + tokenPath,
		httpClient: httpClient,
		clock:      clock,
		log:        cfg.Logger,
	}, nil
}

// Initiate requests a new device code.
func (a *Authenticator) Initiate(ctx context.Context) (DeviceCode, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	resp, err := a.oauth.DeviceAuth(ctx)
	if err != nil {
		return DeviceCode{}, &AuthInitiationError{Err: err}
	}
	if resp.DeviceCode == "" || resp.UserCode == "" {
		return DeviceCode{}, &AuthInitiationError{Err: fmt.Errorf("response missing device or user code")}
	}

	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}

	expiresAt := resp.Expiry
	if expiresAt.IsZero() {
		expiresAt = a.clock.Now().Add(defaultExpiry)
	}

	return DeviceCode{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		Interval:        interval,
		ExpiresAt:       expiresAt,
	}, nil
}

// Poll exchanges code for an access token, waiting the current interval plus
// a one second grace before every request. A slow_down response permanently
// raises the interval. Poll returns when a token is issued, the provider
// reports a terminal error, the code expires, or ctx is done.
func (a *Authenticator) Poll(ctx context.Context, code DeviceCode) (string, error) {
	interval := code.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-a.clock.After(interval + pollGrace):
		}

		if !code.ExpiresAt.IsZero() && !a.clock.Now().Before(code.ExpiresAt) {
			return "", ErrTokenExpired
		}

		resp, err := a.exchange(ctx, code.DeviceCode)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", &UnknownAuthError{Err: err}
		}

		if resp.AccessToken != "" {
			return resp.AccessToken, nil
		}

		switch resp.Error {
		case errAuthorizationPending:
			if a.log != nil {
				a.log.Debug("device authorization pending", "interval", interval)
			}
		case errSlowDown:
			if resp.Interval > 0 {
				interval = time.Duration(resp.Interval) * time.Second
			} else {
				interval += slowDownStep
			}
			if a.log != nil {
				a.log.Info("device flow asked to slow down", "interval", interval)
			}
		case errExpiredToken:
			return "", ErrTokenExpired
		case errAccessDenied:
			return "", ErrAccessDenied
		default:
			return "", &UnknownAuthError{Code: resp.Error, Description: resp.ErrorDescription}
		}
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Interval         int64  `json:"interval"`
}

func (a *Authenticator) exchange(ctx context.Context, deviceCode string) (tokenResponse, error) {
	form := url.Values{
		"client_id":   {a.oauth.ClientID},
		"device_code": {deviceCode},
		"grant_type":  {deviceGrantType},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("read token response: %w", err)
	}

	var out tokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return tokenResponse{}, fmt.Errorf("token endpoint returned %s", resp.Status)
		}
		return tokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}

	if out.AccessToken == "" && out.Error == "" {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return tokenResponse{}, fmt.Errorf("token endpoint returned %s", resp.Status)
		}
		return tokenResponse{}, fmt.Errorf("token response contained neither token nor error (status %s)", strconv.Itoa(resp.StatusCode))
	}

	return out, nil
}

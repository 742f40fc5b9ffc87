package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultRefreshMargin = 5 * time.Minute

// Credentials are the client-credentials pair issued by TDX.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

func (c Credentials) Empty() bool {
	return c.ClientID == "" || c.ClientSecret == ""
}

// Error reports a failed credential exchange.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "tdx auth failed: " + e.Message
	}
	return fmt.Sprintf("tdx auth failed: %d %s", e.Status, e.Message)
}

type cachedToken struct {
	value     string
	clientID  string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Manager owns the process-wide access token. It hands out the cached token
// while more than the refresh margin remains and collapses concurrent
// refreshes into a single exchange.
type Manager struct {
	tokenURL   string
	margin     time.Duration
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger

	mu     sync.RWMutex
	cached *cachedToken

	group     singleflight.Group
	exchanges atomic.Int64
}

type Option func(*Manager)

func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithRefreshMargin(d time.Duration) Option {
	return func(m *Manager) { m.margin = d }
}

func NewManager(tokenURL string, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		tokenURL: tokenURL,
		margin:   DefaultRefreshMargin,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now:    time.Now,
		logger: logger.With("component", "token_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a bearer token for creds, exchanging credentials with the
// auth endpoint only when the cached token is missing, issued for another
// client, or within the refresh margin of its expiry.
func (m *Manager) Token(ctx context.Context, creds Credentials) (string, error) {
	if tok, ok := m.lookup(creds.ClientID); ok {
		return tok, nil
	}

	// The exchange outlives any single caller; the HTTP client timeout
	// bounds it. Each caller still stops waiting when its own ctx ends.
	exchangeCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(creds.ClientID, func() (interface{}, error) {
		// Another caller may have refreshed while we waited on the group.
		if tok, ok := m.lookup(creds.ClientID); ok {
			return tok, nil
		}
		return m.exchange(exchangeCtx, creds)
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for token: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			m.logger.Debug("token refresh shared", "client_id", creds.ClientID)
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) lookup(clientID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cached == nil || m.cached.clientID != clientID {
		return "", false
	}
	if !m.cached.expiresAt.After(m.now().Add(m.margin)) {
		return "", false
	}
	return m.cached.value, true
}

func (m *Manager) exchange(ctx context.Context, creds Credentials) (string, error) {
	start := m.now()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	m.exchanges.Add(1)
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &Error{Status: resp.StatusCode, Message: "malformed token response: " + err.Error()}
	}
	if body.AccessToken == "" || body.ExpiresIn <= 0 {
		return "", &Error{Status: resp.StatusCode, Message: "token response missing access_token or expires_in"}
	}

	expiresAt := start.Add(time.Duration(body.ExpiresIn) * time.Second)

	m.mu.Lock()
	m.cached = &cachedToken{
		value:     body.AccessToken,
		clientID:  creds.ClientID,
		expiresAt: expiresAt,
	}
	m.mu.Unlock()

	m.logger.Info("access token refreshed",
		"client_id", creds.ClientID,
		"expires_at", expiresAt,
		"duration_ms", m.now().Sub(start).Milliseconds(),
	)
	return body.AccessToken, nil
}

// Invalidate drops the cached token so the next call re-authenticates.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

type Stats struct {
	Exchanges int64     `json:"exchanges"`
	Cached    bool      `json:"cached"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Exchanges: m.exchanges.Load()}
	if m.cached != nil {
		s.Cached = true
		s.ExpiresAt = m.cached.expiresAt
	}
	return s
}

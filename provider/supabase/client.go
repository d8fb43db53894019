package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wallyhq/go-account"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultSchema        = "public"
	defaultEventBuffer   = 16
	defaultRefreshLeeway = 60 * time.Second
)

// Config configures the client.
type Config struct {
	// BaseURL is the project URL, e.g. https://api.example.com
	BaseURL string

	// APIKey is the anon/publishable key sent on every request.
	APIKey string

	// Schema selects the Postgres schema for resource store requests.
	Schema string

	// ClientInfo is sent as X-Client-Info when set.
	ClientInfo string

	// HTTPClient overrides the default client (useful for tests).
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is nil.
	Timeout time.Duration

	// EventBuffer sizes the auth event channel.
	EventBuffer int

	// RefreshLeeway is how long before expiry the auto-refresh loop rotates
	// tokens.
	RefreshLeeway time.Duration
}

// Option customizes client construction.
type Option func(*Client)

// WithLogger overrides the default logger.
func WithLogger(logger account.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// Client implements account.IdentityClient and account.ResourceClient over
// a Supabase-compatible backend: GoTrue under /auth/v1, PostgREST under
// /rest/v1.
type Client struct {
	cfg    Config
	http   *http.Client
	logger account.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *account.Session

	events    chan account.AuthEvent
	closeOnce sync.Once
}

var (
	_ account.IdentityClient = (*Client)(nil)
	_ account.ResourceClient = (*Client)(nil)
)

// New validates the config and returns a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("supabase: base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("supabase: API key is required")
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Schema == "" {
		cfg.Schema = defaultSchema
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.RefreshLeeway <= 0 {
		cfg.RefreshLeeway = defaultRefreshLeeway
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: nil,
		now:    time.Now,
		events: make(chan account.AuthEvent, cfg.EventBuffer),
	}
	c.logger = defaultLogger{}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// Events returns the channel of asynchronous auth-state changes.
func (c *Client) Events() <-chan account.AuthEvent {
	return c.events
}

// Close stops event delivery. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.events)
	})
}

// StartAutoRefresh rotates the token pair shortly before expiry and emits
// TokenRefreshed events until ctx is done.
func (c *Client) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.maybeRefresh(ctx)
			}
		}
	}()
}

func (c *Client) maybeRefresh(ctx context.Context) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil || current.RefreshToken == "" {
		return
	}
	if !current.ExpiresWithin(c.now(), c.cfg.RefreshLeeway) {
		return
	}

	if _, err := c.RefreshSession(ctx); err != nil {
		c.logger.Warn("auto refresh failed: %v", err)
	}
}

func (c *Client) emit(event account.AuthEvent) {
	select {
	case c.events <- event:
	default:
		c.logger.Warn("auth event channel full, dropping %s", event.Kind)
	}
}

func (c *Client) setCurrent(session *account.Session) {
	c.mu.Lock()
	c.current = session.Clone()
	c.mu.Unlock()
}

func (c *Client) currentSession() *account.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone()
}

// doJSON issues one request with the project headers applied and decodes a
// 2xx body into out when out is non-nil. Non-2xx responses are normalized
// into the account error taxonomy; transport failures become network errors.
func (c *Client) doJSON(ctx context.Context, method, url string, headers map[string]string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("supabase: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("supabase: build request: %w", err)
	}

	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.ClientInfo != "" {
		req.Header.Set("X-Client-Info", c.cfg.ClientInfo)
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return account.WrapNetworkError(err, "request to "+method+" "+url+" failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("supabase: decode response: %w", err)
	}

	return nil
}

type defaultLogger struct{}

func (defaultLogger) Debug(format string, args ...any) {}
func (defaultLogger) Info(format string, args ...any)  {}
func (defaultLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SUPABASE "+format+"\n", args...)
}
func (defaultLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SUPABASE "+format+"\n", args...)
}

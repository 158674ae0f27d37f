// Package rest is the venue's REST channel: token authentication, account
// balances and trade history.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"tradestream/internal/circuitbreaker"
	"tradestream/internal/ratelimit"
	"tradestream/pkg/core"
)

const (
	PathAuth     = "/api/v5/auth"
	PathBalances = "/api/v4/balances"
	PathTrades   = "/api/v4/trades"
)

// Client calls the REST API with a bearer token obtained from the auth endpoint.
// The token is reused until TokenTTL elapses or the venue rejects it.
type Client struct {
	config  *core.RESTConfig
	http    *resty.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.Breaker
	logger  zerolog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time

	closeOnce sync.Once
}

// NewClient validates config and builds a client. No request is made until the
// first call.
func NewClient(config *core.RESTConfig) (*Client, error) {
	if config == nil {
		return nil, core.InvalidConfig(errors.New("config is required"))
	}
	if err := config.Validate(); err != nil {
		return nil, core.InvalidConfig(err)
	}

	c := &Client{
		config:  config,
		limiter: ratelimit.New(config.RateLimitRequests, config.RateLimitPeriod),
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	if config.CircuitBreakerEnabled {
		c.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    config.CircuitBreakerFailThreshold,
			SuccessThreshold: config.CircuitBreakerSuccessThreshold,
			Timeout:          config.CircuitBreakerTimeout,
		})
	}

	client := resty.New()
	client.SetBaseURL(config.BaseURL)
	client.SetTimeout(config.Timeout)
	client.SetRetryCount(config.MaxRetries)
	client.SetRetryWaitTime(config.RetryWaitMin)
	client.SetRetryMaxWaitTime(config.RetryWaitMax)
	client.SetHeader("Accept", "application/json")

	client.AddRequestMiddleware(func(_ *resty.Client, req *resty.Request) error {
		c.logger.Debug().
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("http request")
		return nil
	})
	client.AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
		c.logger.Debug().
			Str("method", resp.Request.Method).
			Str("url", resp.Request.URL).
			Int("status", resp.StatusCode()).
			Msg("http response")
		return nil
	})

	c.http = client
	return c, nil
}

// SetLogger sets the logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.http.Close()
	})
	return err
}

// GetPositions returns the account balances.
func (c *Client) GetPositions(ctx context.Context) (*Positions, error) {
	var out Positions
	if err := c.get(ctx, PathBalances, nil, &out); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return &out, nil
}

// ListTrades returns trades filled after afterMillis (epoch milliseconds). An empty
// status lists trades in any status.
func (c *Client) ListTrades(ctx context.Context, afterMillis int64, status string) (*TradesResponse, error) {
	query := map[string]string{
		"after":    strconv.FormatInt(afterMillis, 10),
		"timetype": "filled",
	}
	if status != "" {
		query["status"] = status
	}

	var out TradesResponse
	if err := c.get(ctx, PathTrades, query, &out); err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return &out, nil
}

// Token returns a valid bearer token, authenticating first if the cached one
// is missing or expired.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	creds := c.config.Credentials
	req := c.http.R().SetBasicAuth(creds.APIKey, creds.SecretKey)
	var auth AuthResponse
	if err := c.execute(ctx, PathAuth, req, &auth); err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	if auth.Token == "" {
		msg := auth.Message
		if msg == "" {
			msg = "empty token in auth response"
		}
		return "", core.NewStreamError(core.ErrorTypeAuthentication, msg).WithCode(core.ErrCodeAuth)
	}

	c.token = auth.Token
	c.expiresAt = c.now().Add(c.config.TokenTTL)
	c.logger.Info().Time("valid_until", c.expiresAt).Msg("authentication token refreshed")
	return c.token, nil
}

func (c *Client) invalidateToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
	}
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out any) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	req := c.http.R().SetAuthToken(token)
	if query != nil {
		req.SetQueryParams(query)
	}

	err = c.execute(ctx, path, req, out)
	if core.IsAuthenticationError(err) {
		c.invalidateToken(token)
	}
	return err
}

// execute runs a GET through the rate limiter and the circuit breaker and decodes
// a successful JSON body into out.
func (c *Client) execute(ctx context.Context, path string, req *resty.Request, out any) error {
	if err := c.limiter.Wait(ctx, path); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return core.NewStreamError(core.ErrorTypeCircuitOpen, err.Error()).
				WithCode(core.ErrCodeCircuitBreaker).
				WithCause(err)
		}
	}

	err := c.do(ctx, path, req, out)
	if c.breaker != nil {
		c.breaker.Record(err)
	}
	return err
}

func (c *Client) do(ctx context.Context, path string, req *resty.Request, out any) error {
	resp, err := req.SetContext(ctx).Get(path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.NewStreamError(core.ErrorTypeNetwork, err.Error()).
			WithCode(core.ErrCodeNetwork).
			WithCause(err)
	}

	status := resp.StatusCode()
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		e := core.NewHTTPError(status, fmt.Sprintf("%s: %s", http.StatusText(status), resp.String()))
		if e.Type == core.ErrorTypeAuthentication {
			e.WithCode(core.ErrCodeAuth)
		}
		return e
	}

	if err := sonic.Unmarshal(resp.Bytes(), out); err != nil {
		return core.NewStreamError(core.ErrorTypeDeserialization, err.Error()).
			WithCode(core.ErrCodeDecode).
			WithCause(err)
	}
	return nil
}

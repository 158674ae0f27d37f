package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Defaults shared by the stream and REST configurations.
const (
	DefaultTimeWindow     = 60 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultPingInterval   = 10 * time.Second
	DefaultPongWait       = 20 * time.Second
	DefaultPollInterval   = 5 * time.Second
	DefaultTokenTTL       = 24*time.Hour - time.Minute
)

// Credentials holds API authentication credentials for the venue.
type Credentials struct {
	// APIKey is the public API key identifier.
	APIKey string `json:"api_key" validate:"required"`
	// SecretKey is the private key used for signing.
	SecretKey string `json:"secret_key" validate:"required"`
}

// Config contains the configuration of the streaming client.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://sandbox.trade.example/ws.
	URL         string       `json:"url" validate:"required,url"`
	Credentials *Credentials `json:"credentials" validate:"required"`

	// TimeWindow is the validity window advertised in the signed handshake.
	TimeWindow time.Duration `json:"time_window" validate:"min=1ms"`

	// ReconnectEnabled turns on the fixed-delay reconnect loop.
	ReconnectEnabled bool          `json:"reconnect_enabled"`
	ReconnectDelay   time.Duration `json:"reconnect_delay" validate:"min=0"`
	// MaxReconnectAttempts bounds consecutive failed reconnect attempts. Zero retries forever.
	MaxReconnectAttempts int `json:"max_reconnect_attempts" validate:"min=0"`

	PingInterval     time.Duration `json:"ping_interval" validate:"min=0"`
	PongWait         time.Duration `json:"pong_wait" validate:"min=0"`
	HandshakeTimeout time.Duration `json:"handshake_timeout" validate:"min=0"`

	// RequestTimeout fails pending requests that get no response in time. Zero disables it,
	// in which case a request in flight during a disconnect never completes on its own.
	RequestTimeout time.Duration `json:"request_timeout" validate:"min=0"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config for the given endpoint with the venue defaults:
// 60s time window, reconnect every 5s without limit, 10s ping interval, no request timeout.
func DefaultConfig(url string) *Config {
	return &Config{
		URL:              url,
		TimeWindow:       DefaultTimeWindow,
		ReconnectEnabled: true,
		ReconnectDelay:   DefaultReconnectDelay,
		PingInterval:     DefaultPingInterval,
		PongWait:         DefaultPongWait,
		HandshakeTimeout: 10 * time.Second,
		LogLevel:         "info",
	}
}

var validate = validator.New()

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.ReconnectEnabled && c.ReconnectDelay <= 0 {
		return errors.New("ReconnectDelay must be positive when reconnect is enabled")
	}
	return nil
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(apiKey, secretKey string) *Config {
	c.Credentials = &Credentials{APIKey: apiKey, SecretKey: secretKey}
	return c
}

// WithReconnect configures the reconnect policy and returns the config for chaining.
func (c *Config) WithReconnect(enabled bool, delay time.Duration, maxAttempts int) *Config {
	c.ReconnectEnabled = enabled
	c.ReconnectDelay = delay
	c.MaxReconnectAttempts = maxAttempts
	return c
}

// WithRequestTimeout sets the pending request timeout and returns the config for chaining.
func (c *Config) WithRequestTimeout(timeout time.Duration) *Config {
	c.RequestTimeout = timeout
	return c
}

// WithLogLevel sets the log level and returns the config for chaining.
func (c *Config) WithLogLevel(level string) *Config {
	c.LogLevel = level
	return c
}

// RESTConfig contains the configuration of the REST client and the trade poller.
type RESTConfig struct {
	BaseURL     string       `json:"base_url" validate:"required,url"`
	Credentials *Credentials `json:"credentials" validate:"required"`

	// Timeout is the maximum duration for HTTP requests.
	Timeout      time.Duration `json:"timeout" validate:"min=1ms"`
	MaxRetries   int           `json:"max_retries" validate:"min=0"`
	RetryWaitMin time.Duration `json:"retry_wait_min" validate:"min=0"`
	RetryWaitMax time.Duration `json:"retry_wait_max" validate:"min=0"`

	RateLimitRequests int           `json:"rate_limit_requests" validate:"min=1"`
	RateLimitPeriod   time.Duration `json:"rate_limit_period" validate:"min=1ms"`

	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout"`

	// TokenTTL is how long an auth token is reused before it is refreshed.
	TokenTTL time.Duration `json:"token_ttl" validate:"min=1ms"`

	// PollInterval is the trade poller period.
	PollInterval time.Duration `json:"poll_interval" validate:"min=1ms"`
	// TradeStatus is the status filter used by the poller.
	TradeStatus string `json:"trade_status"`
}

// DefaultRESTConfig returns a RESTConfig with defaults matching the venue:
// 30s timeout, 24h token reuse minus a minute of slack, 5s trade polling.
func DefaultRESTConfig(baseURL string) *RESTConfig {
	return &RESTConfig{
		BaseURL:      baseURL,
		Timeout:      30 * time.Second,
		MaxRetries:   0,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: time.Second,

		RateLimitRequests: 600,
		RateLimitPeriod:   time.Minute,

		CircuitBreakerEnabled:          true,
		CircuitBreakerFailThreshold:    5,
		CircuitBreakerSuccessThreshold: 2,
		CircuitBreakerTimeout:          30 * time.Second,

		TokenTTL:     DefaultTokenTTL,
		PollInterval: DefaultPollInterval,
		TradeStatus:  "Complete",
	}
}

// Validate checks the configuration.
func (c *RESTConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 {
			return errors.New("CircuitBreakerFailThreshold must be positive when enabled")
		}
		if c.CircuitBreakerSuccessThreshold <= 0 {
			return errors.New("CircuitBreakerSuccessThreshold must be positive when enabled")
		}
		if c.CircuitBreakerTimeout <= 0 {
			return errors.New("CircuitBreakerTimeout must be positive when enabled")
		}
	}
	return nil
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *RESTConfig) WithCredentials(apiKey, secretKey string) *RESTConfig {
	c.Credentials = &Credentials{APIKey: apiKey, SecretKey: secretKey}
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *RESTConfig) WithTimeout(timeout time.Duration) *RESTConfig {
	c.Timeout = timeout
	return c
}

// WithRateLimit sets the rate limiting parameters and returns the config for chaining.
func (c *RESTConfig) WithRateLimit(requests int, period time.Duration) *RESTConfig {
	c.RateLimitRequests = requests
	c.RateLimitPeriod = period
	return c
}

// WithPollInterval sets the trade poller period and returns the config for chaining.
func (c *RESTConfig) WithPollInterval(interval time.Duration) *RESTConfig {
	c.PollInterval = interval
	return c
}

// ParseLogLevel converts a configured level name into a zerolog level.
// Empty or unknown names fall back to info.
func ParseLogLevel(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// InvalidConfig wraps a validation failure as a StreamError.
func InvalidConfig(err error) *StreamError {
	return NewStreamError(ErrorTypeUnknown, fmt.Sprintf("invalid config: %v", err)).
		WithCode(ErrCodeInvalidConfig).
		WithCause(err)
}

package core

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("wss://sandbox.example.com/ws")

	assert.Equal(t, "wss://sandbox.example.com/ws", config.URL)
	assert.Equal(t, 60*time.Second, config.TimeWindow)
	assert.True(t, config.ReconnectEnabled)
	assert.Equal(t, 5*time.Second, config.ReconnectDelay)
	assert.Equal(t, 0, config.MaxReconnectAttempts)
	assert.Equal(t, 10*time.Second, config.PingInterval)
	assert.Equal(t, time.Duration(0), config.RequestTimeout)
	assert.Equal(t, "info", config.LogLevel)
	assert.Nil(t, config.Credentials)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return DefaultConfig("wss://sandbox.example.com/ws").WithCredentials("key", "secret")
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid_config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing_url",
			mutate:  func(c *Config) { c.URL = "" },
			wantErr: true,
			errMsg:  "URL",
		},
		{
			name:    "missing_credentials",
			mutate:  func(c *Config) { c.Credentials = nil },
			wantErr: true,
			errMsg:  "Credentials",
		},
		{
			name:    "empty_secret",
			mutate:  func(c *Config) { c.Credentials.SecretKey = "" },
			wantErr: true,
			errMsg:  "SecretKey",
		},
		{
			name:    "zero_time_window",
			mutate:  func(c *Config) { c.TimeWindow = 0 },
			wantErr: true,
			errMsg:  "TimeWindow",
		},
		{
			name:    "negative_request_timeout",
			mutate:  func(c *Config) { c.RequestTimeout = -time.Second },
			wantErr: true,
			errMsg:  "RequestTimeout",
		},
		{
			name:    "reconnect_without_delay",
			mutate:  func(c *Config) { c.ReconnectDelay = 0 },
			wantErr: true,
			errMsg:  "ReconnectDelay",
		},
		{
			name: "reconnect_disabled_without_delay",
			mutate: func(c *Config) {
				c.ReconnectEnabled = false
				c.ReconnectDelay = 0
			},
			wantErr: false,
		},
		{
			name:    "invalid_log_level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
			errMsg:  "LogLevel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Chaining(t *testing.T) {
	config := DefaultConfig("wss://sandbox.example.com/ws").
		WithCredentials("key", "secret").
		WithReconnect(true, time.Second, 3).
		WithRequestTimeout(2 * time.Second).
		WithLogLevel("debug")

	assert.Equal(t, "key", config.Credentials.APIKey)
	assert.Equal(t, "secret", config.Credentials.SecretKey)
	assert.Equal(t, time.Second, config.ReconnectDelay)
	assert.Equal(t, 3, config.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, config.RequestTimeout)
	assert.Equal(t, "debug", config.LogLevel)
}

func TestDefaultRESTConfig(t *testing.T) {
	config := DefaultRESTConfig("https://sandbox.example.com")

	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, 5*time.Second, config.PollInterval)
	assert.Equal(t, 24*time.Hour-time.Minute, config.TokenTTL)
	assert.Equal(t, "Complete", config.TradeStatus)
	assert.True(t, config.CircuitBreakerEnabled)
}

func TestRESTConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *RESTConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid_config",
			config:  DefaultRESTConfig("https://sandbox.example.com").WithCredentials("k", "s"),
			wantErr: false,
		},
		{
			name:    "invalid_base_url",
			config:  DefaultRESTConfig("not a url").WithCredentials("k", "s"),
			wantErr: true,
			errMsg:  "BaseURL",
		},
		{
			name:    "zero_rate_limit",
			config:  DefaultRESTConfig("https://sandbox.example.com").WithCredentials("k", "s").WithRateLimit(0, time.Minute),
			wantErr: true,
			errMsg:  "RateLimitRequests",
		},
		{
			name: "breaker_without_threshold",
			config: func() *RESTConfig {
				c := DefaultRESTConfig("https://sandbox.example.com").WithCredentials("k", "s")
				c.CircuitBreakerFailThreshold = 0
				return c
			}(),
			wantErr: true,
			errMsg:  "CircuitBreakerFailThreshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLogLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLogLevel("nonsense"))
}

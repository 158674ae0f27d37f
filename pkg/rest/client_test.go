package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradestream/pkg/core"
)

const positionsBody = `{
	"assets": [
		{"asset": "BTC", "maxSell": 1.5, "maxBuy": 2, "position": 0.25},
		{"asset": "ETH", "maxSell": 10, "maxBuy": 10, "position": 0}
	],
	"cadBalance": 0,
	"usdBalance": 1500.5,
	"usdcBalance": 10,
	"usdtBalance": 0
}`

const tradesBody = `{
	"data": [
		{"_id": "t-1", "createdAt": "2024-03-01T12:00:00.250Z", "price": 64000, "quantity": 0.5,
		 "side": "buy", "tradeKey": "k1", "clientTag": "tag", "asset": "BTC", "counterAsset": "USD",
		 "status": "Complete", "user": {"_id": "u-1", "firstName": "Ada", "lastName": "L"}}
	],
	"total": 1,
	"pageCount": 1
}`

type fakeVenue struct {
	server    *httptest.Server
	authCalls atomic.Int32
	tokens    atomic.Int32

	mu          sync.Mutex
	queries     []url.Values
	balances    int
	rejectToken string
}

func newFakeVenue(t *testing.T) *fakeVenue {
	t.Helper()
	v := &fakeVenue{balances: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc(PathAuth, func(w http.ResponseWriter, r *http.Request) {
		v.authCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"bad credentials"}`))
			return
		}
		n := v.tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok-` + strconv.Itoa(int(n)) + `"}`))
	})
	mux.HandleFunc(PathBalances, func(w http.ResponseWriter, r *http.Request) {
		if !v.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		v.mu.Lock()
		status := v.balances
		v.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("maintenance"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(positionsBody))
	})
	mux.HandleFunc(PathTrades, func(w http.ResponseWriter, r *http.Request) {
		if !v.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		v.mu.Lock()
		v.queries = append(v.queries, r.URL.Query())
		v.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tradesBody))
	})

	v.server = httptest.NewServer(mux)
	t.Cleanup(v.server.Close)
	return v
}

func (v *fakeVenue) authorized(r *http.Request) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	auth := r.Header.Get("Authorization")
	if v.rejectToken != "" && auth == "Bearer "+v.rejectToken {
		return false
	}
	return strings.HasPrefix(auth, "Bearer tok-")
}

func (v *fakeVenue) setBalancesStatus(status int) {
	v.mu.Lock()
	v.balances = status
	v.mu.Unlock()
}

func newTestClient(t *testing.T, v *fakeVenue, mutate ...func(*core.RESTConfig)) *Client {
	t.Helper()
	config := core.DefaultRESTConfig(v.server.URL).WithCredentials("key", "secret").WithTimeout(2 * time.Second)
	for _, m := range mutate {
		m(config)
	}
	c, err := NewClient(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(nil)
	assert.True(t, core.IsErrorCode(err, core.ErrCodeInvalidConfig))

	_, err = NewClient(core.DefaultRESTConfig("not a url"))
	assert.True(t, core.IsErrorCode(err, core.ErrCodeInvalidConfig))
}

func TestClient_GetPositions(t *testing.T) {
	venue := newFakeVenue(t)
	client := newTestClient(t, venue)

	positions, err := client.GetPositions(context.Background())
	require.NoError(t, err)

	require.Len(t, positions.Assets, 2)
	assert.Equal(t, Position{Asset: "BTC", MaxSell: 1.5, MaxBuy: 2, Position: 0.25}, positions.Assets[0])
	assert.Equal(t, 1500.5, positions.USDBalance)
	assert.Equal(t, 10.0, positions.USDCBalance)
	assert.Equal(t, []Position{positions.Assets[0]}, positions.NonZero())
}

func TestClient_ListTrades(t *testing.T) {
	venue := newFakeVenue(t)
	client := newTestClient(t, venue)

	resp, err := client.ListTrades(context.Background(), 1709294400000, "Complete")
	require.NoError(t, err)

	require.Len(t, resp.Data, 1)
	trade := resp.Data[0]
	assert.Equal(t, "t-1", trade.ID)
	assert.Equal(t, "BTC", trade.Asset)
	assert.Equal(t, "USD", trade.CounterAsset)
	assert.Equal(t, 0.5, trade.Quantity)
	require.NotNil(t, trade.User)
	assert.Equal(t, "u-1", trade.User.ID)
	assert.Equal(t, 1, resp.Total)

	created, err := trade.CreatedTime()
	require.NoError(t, err)
	assert.Equal(t, int64(1709294400250), created.UnixMilli())

	venue.mu.Lock()
	defer venue.mu.Unlock()
	require.Len(t, venue.queries, 1)
	q := venue.queries[0]
	assert.Equal(t, "1709294400000", q.Get("after"))
	assert.Equal(t, "Complete", q.Get("status"))
	assert.Equal(t, "filled", q.Get("timetype"))
}

func TestClient_ListTradesWithoutStatus(t *testing.T) {
	venue := newFakeVenue(t)
	client := newTestClient(t, venue)

	_, err := client.ListTrades(context.Background(), 0, "")
	require.NoError(t, err)

	venue.mu.Lock()
	defer venue.mu.Unlock()
	assert.False(t, venue.queries[0].Has("status"))
	assert.Equal(t, "0", venue.queries[0].Get("after"))
}

func TestClient_TokenReused(t *testing.T) {
	venue := newFakeVenue(t)
	client := newTestClient(t, venue)
	ctx := context.Background()

	_, err := client.GetPositions(ctx)
	require.NoError(t, err)
	_, err = client.ListTrades(ctx, 0, "Complete")
	require.NoError(t, err)

	assert.Equal(t, int32(1), venue.authCalls.Load())
}

func TestClient_TokenRefreshedAfterTTL(t *testing.T) {
	venue := newFakeVenue(t)
	client := newTestClient(t, venue)
	now := time.Unix(1_700_000_000, 0)
	client.now = func() time.Time { return now }

	first, err := client.Token(context.Background())
	require.NoError(t, err)

	now = now.Add(core.DefaultTokenTTL - time.Second)
	same, err := client.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, same)

	now = now.Add(2 * time.Second)
	refreshed, err := client.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, refreshed)
	assert.Equal(t, int32(2), venue.authCalls.Load())
}

func TestClient_RejectedTokenIsDropped(t *testing.T) {
	venue := newFakeVenue(t)
	client := newTestClient(t, venue)
	ctx := context.Background()

	token, err := client.Token(ctx)
	require.NoError(t, err)
	venue.mu.Lock()
	venue.rejectToken = token
	venue.mu.Unlock()

	_, err = client.GetPositions(ctx)
	require.Error(t, err)
	assert.True(t, core.IsAuthenticationError(err))

	_, err = client.GetPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), venue.authCalls.Load())
}

func TestClient_BadCredentials(t *testing.T) {
	venue := newFakeVenue(t)
	client := newTestClient(t, venue, func(c *core.RESTConfig) {
		c.WithCredentials("key", "wrong")
	})

	_, err := client.GetPositions(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsAuthenticationError(err))
	assert.True(t, core.IsErrorCode(err, core.ErrCodeAuth))
	assert.False(t, core.IsRetryable(err))
	assert.Contains(t, err.Error(), "bad credentials")
}

func TestClient_HTTPErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   core.ErrorType
	}{
		{"server_error", http.StatusServiceUnavailable, core.ErrorTypeServerError},
		{"rate_limited", http.StatusTooManyRequests, core.ErrorTypeRateLimit},
		{"not_found", http.StatusNotFound, core.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			venue := newFakeVenue(t)
			venue.setBalancesStatus(tt.status)
			client := newTestClient(t, venue)

			_, err := client.GetPositions(context.Background())
			require.Error(t, err)

			var se *core.StreamError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.want, se.Type)
			assert.Equal(t, tt.status, se.StatusCode)
		})
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	venue := newFakeVenue(t)
	venue.setBalancesStatus(http.StatusInternalServerError)
	client := newTestClient(t, venue, func(c *core.RESTConfig) {
		c.CircuitBreakerFailThreshold = 2
		c.CircuitBreakerTimeout = time.Minute
	})
	ctx := context.Background()

	_, err := client.GetPositions(ctx)
	require.Error(t, err)
	_, err = client.GetPositions(ctx)
	require.Error(t, err)

	_, err = client.GetPositions(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCircuitOpen)
	assert.True(t, core.IsErrorCode(err, core.ErrCodeCircuitBreaker))
}

func TestClient_ContextCancelled(t *testing.T) {
	venue := newFakeVenue(t)
	client := newTestClient(t, venue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetPositions(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_NetworkError(t *testing.T) {
	venue := newFakeVenue(t)
	client := newTestClient(t, venue)
	venue.server.Close()

	_, err := client.GetPositions(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsErrorCode(err, core.ErrCodeNetwork))
	assert.True(t, core.IsRetryable(err))
}

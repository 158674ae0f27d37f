package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradestream/internal/auth"
	"tradestream/pkg/core"
	"tradestream/pkg/pending"
	"tradestream/pkg/quote"
	"tradestream/pkg/wire"
)

// Client is the streaming trading client. It is safe for concurrent use.
//
// Requests return a *pending.Handle that completes exactly once: with the venue's
// response, an upstream error, a timeout (when Config.RequestTimeout is set) or a
// client-closed error. Without a timeout a request in flight when the connection
// drops stays pending.
type Client struct {
	config  *core.Config
	quotes  *quote.Store
	pending *pending.Table
	subs    *subscriptions
	router  *Router
	conn    *ConnectionManager
	logger  zerolog.Logger

	closed atomic.Bool
	newID  func() string
}

// NewClient validates config and builds a client. Nothing is dialed until Connect.
// A nil observer is replaced by NopObserver.
func NewClient(config *core.Config, observer Observer) (*Client, error) {
	if config == nil {
		return nil, core.InvalidConfig(errors.New("config is required"))
	}
	if err := config.Validate(); err != nil {
		return nil, core.InvalidConfig(err)
	}

	c := &Client{
		config:  config,
		quotes:  quote.NewStore(),
		pending: pending.NewTable(),
		subs:    &subscriptions{},
		logger:  zerolog.Nop(),
		newID:   uuid.NewString,
	}
	c.router = NewRouter(c.quotes, c.pending, observer)
	signer := auth.NewSigner(*config.Credentials, config.TimeWindow)
	c.conn = newConnectionManager(config, signer, c.router, c.subs)
	return c, nil
}

// SetLogger sets the logger on the client and its components. Call it before Connect.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
	c.pending.SetLogger(logger)
	c.router.SetLogger(logger)
	c.conn.SetLogger(logger)
}

// Connect opens the stream and waits until subscriptions have been replayed.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return core.ErrClientClosed
	}
	if err := c.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	return nil
}

// Close shuts the connection down and fails every pending request with a
// client-closed error.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.conn.Close()
	if n := c.pending.FailAll(clientClosed()); n > 0 {
		c.logger.Info().Int("count", n).Msg("pending requests cancelled on close")
	}
	return err
}

func clientClosed() *core.StreamError {
	return core.NewStreamError(core.ErrorTypeClientClosed, core.ErrClientClosed.Error()).
		WithCode(core.ErrCodeClientClosed).
		WithCause(core.ErrClientClosed)
}

// State returns the connection state.
func (c *Client) State() ConnState {
	return c.conn.State()
}

// IsConnected reports whether requests can currently be sent.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// PendingRequests returns the number of requests awaiting a response.
func (c *Client) PendingRequests() int {
	return c.pending.Len()
}

// LatestQuote returns the most recent level snapshot for market.
func (c *Client) LatestQuote(market string) (*wire.LevelData, bool) {
	return c.quotes.Get(market)
}

// LevelSubscriptions returns the level subscriptions in replay order.
func (c *Client) LevelSubscriptions() []string {
	return c.subs.snapshot(wire.EventLevels)
}

// PriceSubscriptions returns the price subscriptions in replay order.
func (c *Client) PriceSubscriptions() []string {
	return c.subs.snapshot(wire.EventPrices)
}

// SubscribeLevels records symbol for replay and subscribes now if connected.
// While disconnected the subscription is sent by the next connect.
func (c *Client) SubscribeLevels(symbol string) error {
	return c.subscribe(wire.EventLevels, symbol)
}

// SubscribePrices records symbol for replay and subscribes now if connected.
func (c *Client) SubscribePrices(symbol string) error {
	return c.subscribe(wire.EventPrices, symbol)
}

func (c *Client) subscribe(event, symbol string) error {
	if !c.subs.add(event, symbol) {
		c.logger.Debug().Str("event", event).Str("symbol", symbol).Msg("subscription deferred until connect")
		return nil
	}
	if err := c.conn.Send(wire.NewSubscribe(event, symbol)); err != nil {
		if core.IsConnectionUnavailable(err) {
			return nil
		}
		return fmt.Errorf("subscribe %s %s: %w", event, symbol, err)
	}
	return nil
}

// SubmitMarketOrder sends a MARKET create-order request against a quote.
func (c *Client) SubmitMarketOrder(order MarketOrder) *pending.Handle[*wire.TradeStatusResponse] {
	return c.SubmitOrder(order.order())
}

// SubmitLimitOrder sends a LIMIT create-order request.
func (c *Client) SubmitLimitOrder(order LimitOrder) *pending.Handle[*wire.TradeStatusResponse] {
	return c.SubmitOrder(order.order())
}

// SubmitOrder sends a create-order request for a built order. The connection is
// checked first, so a disconnected client reports ConnectionUnavailable even for
// an invalid order.
func (c *Client) SubmitOrder(order *Order) *pending.Handle[*wire.TradeStatusResponse] {
	if err := c.ready(); err != nil {
		return pending.Failed[*wire.TradeStatusResponse](err)
	}
	if err := order.Validate(); err != nil {
		return pending.Failed[*wire.TradeStatusResponse](err)
	}
	req, err := order.request()
	if err != nil {
		return pending.Failed[*wire.TradeStatusResponse](err)
	}
	return request[*wire.TradeStatusResponse](c, wire.TopicCreateOrder, req)
}

// CancelOrder requests cancellation of orderID.
func (c *Client) CancelOrder(orderID string) *pending.Handle[*wire.TradeStatusResponse] {
	return request[*wire.TradeStatusResponse](c, wire.CancelOrderTopic(orderID), nil)
}

// GetLimits requests the account's trading limits.
func (c *Client) GetLimits() *pending.Handle[*wire.LimitsResponse] {
	return request[*wire.LimitsResponse](c, wire.TopicLimits, nil)
}

func (c *Client) ready() error {
	if c.closed.Load() {
		return clientClosed()
	}
	if !c.conn.IsConnected() {
		return core.ConnectionUnavailable()
	}
	return nil
}

// request registers a handle under a fresh correlation ID and sends the envelope.
// The handle is failed synchronously if nothing could be sent; the table then holds
// no entry for it.
func request[T any](c *Client, topic string, payload wire.Payload) *pending.Handle[T] {
	if err := c.ready(); err != nil {
		return pending.Failed[T](err)
	}

	id := c.newID()
	h := pending.NewHandle[T]()
	if err := c.pending.Register(id, h); err != nil {
		return pending.Failed[T](fmt.Errorf("register %s: %w", topic, err))
	}

	if err := c.conn.Send(wire.NewRequest(id, topic, payload)); err != nil {
		c.pending.Remove(id)
		h.Fail(err)
		return h
	}

	if timeout := c.config.RequestTimeout; timeout > 0 {
		time.AfterFunc(timeout, func() {
			err := core.NewStreamError(core.ErrorTypeTimeout, fmt.Sprintf("no response within %s", timeout)).
				WithCode(core.ErrCodeTimeout).
				WithRequest(id, topic)
			if c.pending.Fail(id, err) {
				c.logger.Warn().Str("correlation_id", id).Str("topic", topic).Msg("request timed out")
			}
		})
	}

	c.logger.Debug().Str("correlation_id", id).Str("topic", topic).Msg("request sent")
	return h
}

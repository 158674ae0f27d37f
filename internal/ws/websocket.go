// Package ws wraps a gws client connection with signed handshakes, keepalive and a
// fixed-delay reconnect loop.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lxzan/gws"
	"github.com/rs/zerolog"

	"tradestream/pkg/core"
)

// ErrHandshakeHeaders marks a connect attempt that failed before dialing because the
// handshake headers could not be built.
var ErrHandshakeHeaders = errors.New("handshake headers")

// Config holds configuration options for a websocket client.
type Config struct {
	// URL is the websocket server endpoint to connect to.
	URL string
	// Header builds the handshake headers. It is called once per connection attempt.
	Header func() (http.Header, error)
	// ReconnectEnabled determines whether automatic reconnection is enabled.
	ReconnectEnabled bool
	// ReconnectDelay is the fixed wait before every reconnection attempt.
	ReconnectDelay time.Duration
	// MaxReconnectAttempts bounds one reconnect cycle. Zero means unbounded.
	MaxReconnectAttempts int
	// PingInterval is the duration between ping frames. Zero disables keepalive.
	PingInterval time.Duration
	// PongWait is added to PingInterval to form the read deadline.
	PongWait time.Duration
	// HandshakeTimeout bounds the HTTP upgrade.
	HandshakeTimeout time.Duration
}

// Handler receives connection events. All methods run on the read goroutine of the
// connection, so a slow handler stalls delivery of later frames. A handler may call
// Client.Close; that Close returns without waiting for the read goroutine.
type Handler interface {
	// OnConnect runs after the state becomes connected and before Connect returns.
	OnConnect()
	// OnFrame receives one binary frame.
	OnFrame(data []byte)
	// OnDisconnect runs after the state leaves connected.
	OnDisconnect(err error)
}

// Client manages a websocket connection with automatic reconnection.
type Client struct {
	config  Config
	state   *State
	conn    *gws.Conn
	events  *eventHandler
	handler Handler
	logger  zerolog.Logger

	mu            sync.RWMutex
	connectedChan chan struct{}
	connDone      chan struct{}
	stopChan      chan struct{}

	// readers tracks ReadLoop goroutines, wg the reconnect and keepalive ones.
	// Both are only added to under mu while stopChan is open.
	readers   sync.WaitGroup
	wg        sync.WaitGroup
	callbacks atomic.Int32
}

type eventHandler struct {
	client *Client
}

// NewClient creates a websocket client that reports events to handler.
// Default values are applied for zero-valued timing fields.
func NewClient(config Config, handler Handler) *Client {
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = core.DefaultReconnectDelay
	}
	if config.PingInterval > 0 && config.PongWait == 0 {
		config.PongWait = core.DefaultPongWait
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 10 * time.Second
	}

	client := &Client{
		config:        config,
		state:         &State{},
		handler:       handler,
		connectedChan: make(chan struct{}),
		stopChan:      make(chan struct{}),
		logger:        zerolog.Nop(),
	}
	client.state.Store(StateDisconnected)
	client.events = &eventHandler{client: client}
	return client
}

// SetLogger configures the logger for the websocket client.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

func (c *Client) extendDeadline(socket *gws.Conn) {
	if c.config.PingInterval <= 0 {
		return
	}
	_ = socket.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongWait))
}

func (h *eventHandler) OnOpen(socket *gws.Conn) {
	c := h.client
	if !c.state.Transition(StateConnected) {
		_ = socket.NetConn().Close()
		return
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.connDone = done
	if c.config.PingInterval > 0 && !c.stopped() {
		c.wg.Go(func() {
			c.keepalive(socket, done)
		})
	}
	c.mu.Unlock()

	c.extendDeadline(socket)

	c.logger.Info().
		Str("url", c.config.URL).
		Msg("websocket connected")

	if c.handler != nil {
		c.callback(c.handler.OnConnect)
	}

	c.mu.Lock()
	select {
	case <-c.connectedChan:
	default:
		close(c.connectedChan)
	}
	c.mu.Unlock()
}

func (h *eventHandler) OnClose(socket *gws.Conn, err error) {
	c := h.client
	closed := !c.state.Transition(StateDisconnected)

	c.mu.Lock()
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	c.connectedChan = make(chan struct{})
	c.mu.Unlock()

	c.logger.Warn().
		Err(err).
		Str("url", c.config.URL).
		Msg("websocket disconnected")

	if c.handler != nil {
		c.callback(func() { c.handler.OnDisconnect(err) })
	}

	if closed || !c.config.ReconnectEnabled {
		return
	}
	c.scheduleReconnect()
}

func (h *eventHandler) OnPing(socket *gws.Conn, payload []byte) {
	h.client.extendDeadline(socket)
	_ = socket.WritePong(payload)
}

func (h *eventHandler) OnPong(socket *gws.Conn, payload []byte) {
	h.client.extendDeadline(socket)
}

func (h *eventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	c := h.client
	c.extendDeadline(socket)

	if message.Opcode != gws.OpcodeBinary {
		c.logger.Debug().Msg("ignoring non-binary frame")
		return
	}

	data := message.Bytes()
	if len(data) == 0 {
		return
	}

	frame := make([]byte, len(data))
	copy(frame, data)

	c.logger.Debug().Int("bytes", len(frame)).Msg("received websocket frame")

	if c.handler != nil {
		c.callback(func() { c.handler.OnFrame(frame) })
	}
}

func (c *Client) callback(fn func()) {
	c.callbacks.Add(1)
	defer c.callbacks.Add(-1)
	fn()
}

// Connect dials the configured URL and waits until the connection is open and
// OnConnect has returned. If the dial fails and reconnect is enabled, the error is
// returned and retries continue in the background. Header failures are not retried.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(StateDisconnected, StateConnecting) {
		current := c.state.Load()
		if current == StateConnected {
			return nil
		}
		return fmt.Errorf("invalid state for connect: %s", current)
	}

	opened, err := c.dial(ctx)
	if err == nil {
		return nil
	}
	if opened {
		// The read loop is running and its OnClose schedules the reconnect.
		return err
	}

	c.state.CompareAndSwap(StateConnecting, StateDisconnected)
	if c.config.ReconnectEnabled && !errors.Is(err, ErrHandshakeHeaders) && !c.stopped() {
		c.logger.Warn().Err(err).Msg("initial connect failed, retrying in background")
		c.scheduleReconnect()
	}
	return err
}

// dial performs one handshake and starts the read loop. opened reports whether the
// read loop was started; once it has, OnClose runs for the socket whatever dial
// returns.
func (c *Client) dial(ctx context.Context) (opened bool, err error) {
	var header http.Header
	if c.config.Header != nil {
		h, err := c.config.Header()
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrHandshakeHeaders, err)
		}
		header = h
	}

	socket, _, err := gws.NewClient(c.events, &gws.ClientOption{
		Addr:             c.config.URL,
		RequestHeader:    header,
		HandshakeTimeout: c.config.HandshakeTimeout,
	})
	if err != nil {
		return false, fmt.Errorf("connect websocket: %w", err)
	}

	c.mu.Lock()
	if c.stopped() {
		c.mu.Unlock()
		_ = socket.NetConn().Close()
		return false, core.ErrClientClosed
	}
	c.conn = socket
	connected := c.connectedChan
	c.readers.Go(func() {
		socket.ReadLoop()
	})
	c.mu.Unlock()

	select {
	case <-connected:
		return true, nil
	case <-ctx.Done():
		_ = socket.NetConn().Close()
		return true, ctx.Err()
	case <-c.stopChan:
		_ = socket.NetConn().Close()
		return true, core.ErrClientClosed
	}
}

func (c *Client) stopped() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped() {
		return
	}
	c.wg.Go(c.reconnectLoop)
}

// reconnectLoop waits the fixed delay and dials until one attempt succeeds, the
// attempt cap is reached or the client is closed.
func (c *Client) reconnectLoop() {
	for attempt := 1; ; attempt++ {
		if c.config.MaxReconnectAttempts > 0 && attempt > c.config.MaxReconnectAttempts {
			c.logger.Error().
				Int("attempts", c.config.MaxReconnectAttempts).
				Msg("reconnect attempts exhausted")
			return
		}

		c.logger.Info().
			Dur("wait", c.config.ReconnectDelay).
			Int("attempt", attempt).
			Msg("attempting reconnect")

		timer := time.NewTimer(c.config.ReconnectDelay)
		select {
		case <-timer.C:
		case <-c.stopChan:
			timer.Stop()
			return
		}

		if !c.state.CompareAndSwap(StateDisconnected, StateConnecting) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.config.HandshakeTimeout)
		opened, err := c.dial(ctx)
		cancel()
		if err == nil {
			c.logger.Info().Int("attempt", attempt).Msg("reconnected successfully")
			return
		}
		if opened || errors.Is(err, core.ErrClientClosed) {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect handshake abandoned")
			return
		}

		c.state.CompareAndSwap(StateConnecting, StateDisconnected)
		c.logger.Error().Err(err).
			Int("attempt", attempt).
			Msg("reconnect failed")
	}
}

func (c *Client) keepalive(socket *gws.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := socket.WritePing(nil); err != nil {
				c.logger.Warn().Err(err).Msg("ping failed")
				return
			}
		case <-done:
			return
		case <-c.stopChan:
			return
		}
	}
}

// Close shuts the client down permanently. Pending reconnects are abandoned.
// Called from a Handler method, Close does not wait for the read goroutine it is
// running on.
func (c *Client) Close() error {
	for {
		current := c.state.Load()
		if current == StateClosed {
			return nil
		}
		if c.state.CompareAndSwap(current, StateClosed) {
			break
		}
	}

	c.mu.Lock()
	close(c.stopChan)
	if c.conn != nil {
		_ = c.conn.NetConn().Close()
	}
	c.mu.Unlock()

	if c.callbacks.Load() == 0 {
		c.readers.Wait()
	}
	c.wg.Wait()
	return nil
}

// State returns the current connection state of the websocket.
func (c *Client) State() ConnState {
	return c.state.Load()
}

// IsConnected returns true if the websocket has an active connection.
func (c *Client) IsConnected() bool {
	return c.state.Load() == StateConnected
}

// Send writes one binary frame. It fails with core.ErrNotConnected unless the
// connection is open; nothing is buffered.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || c.state.Load() != StateConnected {
		return core.ErrNotConnected
	}
	return conn.WriteMessage(gws.OpcodeBinary, data)
}

// SendPing sends a ping frame to the server.
func (c *Client) SendPing() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || c.state.Load() != StateConnected {
		return core.ErrNotConnected
	}
	return conn.WritePing(nil)
}

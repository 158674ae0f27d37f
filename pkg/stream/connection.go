package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tradestream/internal/auth"
	"tradestream/internal/ws"
	"tradestream/pkg/core"
	"tradestream/pkg/wire"
)

// notificationTopics are subscribed on every connect, before any replay.
var notificationTopics = []string{wire.TopicOrderFilled, wire.TopicOrderCancelled}

// ConnectionManager owns the socket: it signs every handshake, replays
// subscriptions on each successful connect, decodes inbound frames for the router
// and gates sends on the connection state.
type ConnectionManager struct {
	socket *ws.Client
	router *Router
	subs   *subscriptions
	logger zerolog.Logger
}

func newConnectionManager(config *core.Config, signer *auth.Signer, router *Router, subs *subscriptions) *ConnectionManager {
	m := &ConnectionManager{
		router: router,
		subs:   subs,
		logger: zerolog.Nop(),
	}
	m.socket = ws.NewClient(ws.Config{
		URL:                  config.URL,
		Header:               signer.Headers,
		ReconnectEnabled:     config.ReconnectEnabled,
		ReconnectDelay:       config.ReconnectDelay,
		MaxReconnectAttempts: config.MaxReconnectAttempts,
		PingInterval:         config.PingInterval,
		PongWait:             config.PongWait,
		HandshakeTimeout:     config.HandshakeTimeout,
	}, m)
	return m
}

// SetLogger sets the logger.
func (m *ConnectionManager) SetLogger(logger zerolog.Logger) {
	m.logger = logger
	m.socket.SetLogger(logger)
}

// OnConnect subscribes to order notifications, then replays level and price
// subscriptions in insertion order.
func (m *ConnectionManager) OnConnect() {
	for _, topic := range notificationTopics {
		m.sendSubscribe(wire.EventNotifications, topic)
	}

	levels, prices := m.subs.replay()
	for _, symbol := range levels {
		m.sendSubscribe(wire.EventLevels, symbol)
	}
	for _, symbol := range prices {
		m.sendSubscribe(wire.EventPrices, symbol)
	}

	m.logger.Info().
		Int("levels", len(levels)).
		Int("prices", len(prices)).
		Msg("subscriptions replayed")
}

func (m *ConnectionManager) sendSubscribe(event, topic string) {
	if err := m.Send(wire.NewSubscribe(event, topic)); err != nil {
		m.logger.Error().Err(err).Str("event", event).Str("topic", topic).Msg("subscribe failed")
	}
}

// OnFrame decodes a frame and hands it to the router. Undecodable frames are dropped.
func (m *ConnectionManager) OnFrame(data []byte) {
	env, err := wire.Unmarshal(data)
	if err != nil {
		m.logger.Warn().
			Err(wire.DecodeError(err)).
			Int("bytes", len(data)).
			Msg("dropping undecodable frame")
		return
	}
	m.router.Route(env)
}

// OnDisconnect implements ws.Handler. Requests in flight stay pending and new
// subscriptions wait for the next replay.
func (m *ConnectionManager) OnDisconnect(err error) {
	m.subs.pause()
	m.logger.Debug().Err(err).Int("pending", m.router.pending.Len()).Msg("connection lost")
}

// Connect opens the connection. See ws.Client.Connect for retry behavior.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	return m.socket.Connect(ctx)
}

// Send encodes and writes env. It returns a ConnectionUnavailable error unless the
// connection is open.
func (m *ConnectionManager) Send(env *wire.Envelope) error {
	if !m.socket.IsConnected() {
		return core.ConnectionUnavailable()
	}

	data, err := wire.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Topic, err)
	}

	if err := m.socket.Send(data); err != nil {
		if errors.Is(err, core.ErrNotConnected) {
			return core.ConnectionUnavailable()
		}
		return fmt.Errorf("send %s: %w", env.Topic, err)
	}

	m.logger.Debug().
		Stringer("type", env.Type).
		Str("event", env.Event).
		Str("topic", env.Topic).
		Msg("sent envelope")
	return nil
}

// Close stops reconnecting and closes the socket.
func (m *ConnectionManager) Close() error {
	return m.socket.Close()
}

// State returns the connection state.
func (m *ConnectionManager) State() ConnState {
	return m.socket.State()
}

// IsConnected reports whether sends are currently permitted.
func (m *ConnectionManager) IsConnected() bool {
	return m.socket.IsConnected()
}

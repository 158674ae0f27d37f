// Package stream implements the streaming trading client: the message router, the
// connection manager that replays subscriptions on every connect, and the Client
// facade that correlates requests with responses.
package stream

import (
	"context"

	"tradestream/internal/ws"
)

// ConnState is the connection state reported by the client.
type ConnState = ws.ConnState

const (
	StateDisconnected = ws.StateDisconnected
	StateConnecting   = ws.StateConnecting
	StateConnected    = ws.StateConnected
	StateClosed       = ws.StateClosed
)

// Stream is the lifecycle shared by ConnectionManager and Client.
type Stream interface {
	Connect(ctx context.Context) error
	Close() error
	State() ConnState
}

var (
	_ Stream = (*ConnectionManager)(nil)
	_ Stream = (*Client)(nil)
)

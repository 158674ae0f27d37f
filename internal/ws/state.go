package ws

import "sync/atomic"

// ConnState is the lifecycle position of a Client's socket.
type ConnState int32

const (
	// StateDisconnected means no socket is open. Reconnect cycles wait in this state.
	StateDisconnected ConnState = iota
	// StateConnecting means a dial and handshake are in progress.
	StateConnecting
	StateConnected
	// StateClosed is terminal: the client was shut down and never dials again.
	StateClosed
)

var connStateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateClosed:       "closed",
}

func (s ConnState) String() string {
	if s < 0 || int(s) >= len(connStateNames) {
		return "unknown"
	}
	return connStateNames[s]
}

// State holds a ConnState that may be read and changed from any goroutine.
type State struct {
	v atomic.Int32
}

func (s *State) Load() ConnState {
	return ConnState(s.v.Load())
}

func (s *State) Store(state ConnState) {
	s.v.Store(int32(state))
}

// CompareAndSwap sets the state to next only if it is currently old.
func (s *State) CompareAndSwap(old, next ConnState) bool {
	return s.v.CompareAndSwap(int32(old), int32(next))
}

// Transition moves to next from any state except StateClosed. It returns false if
// the state is already closed.
func (s *State) Transition(next ConnState) bool {
	for {
		current := s.Load()
		if current == StateClosed {
			return false
		}
		if s.CompareAndSwap(current, next) {
			return true
		}
	}
}

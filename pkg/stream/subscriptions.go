package stream

import (
	"sync"

	"tradestream/pkg/wire"
)

// subscriptions holds the level and price symbols replayed on every connect, in
// insertion order. Duplicates are kept as given.
//
// live is set when a connect takes its replay snapshot and cleared on disconnect.
// A symbol added while live is false is left to the next replay, so it is never
// sent twice.
type subscriptions struct {
	mu     sync.Mutex
	levels []string
	prices []string
	live   bool
}

// add records symbol under event and reports whether the caller must send the
// subscription itself.
func (s *subscriptions) add(event, symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch event {
	case wire.EventLevels:
		s.levels = append(s.levels, symbol)
	case wire.EventPrices:
		s.prices = append(s.prices, symbol)
	}
	return s.live
}

// replay returns copies of both lists and marks the subscriptions live.
func (s *subscriptions) replay() (levels, prices []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = true
	return clone(s.levels), clone(s.prices)
}

func (s *subscriptions) pause() {
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
}

func (s *subscriptions) snapshot(event string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event == wire.EventPrices {
		return clone(s.prices)
	}
	return clone(s.levels)
}

func clone(symbols []string) []string {
	out := make([]string, len(symbols))
	copy(out, symbols)
	return out
}
